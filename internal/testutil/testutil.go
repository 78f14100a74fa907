// Package testutil builds the in-memory fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/refdata"
	"mes-execution-backend/internal/store"
)

// Fixture identities seeded by SeedRefs.
const (
	Tenant    = "t1"
	User      = "u1"
	Product   = "P-1"
	Process   = "R-1"
	Operator  = "W-1"
	Equipment = "E1"
)

// Actor is the default caller of the fixtures.
var Actor = model.Actor{TenantID: Tenant, UserID: User}

// NewDB opens a private in-memory sqlite database with the full schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// NewStore returns a store over a fresh in-memory database.
func NewStore(t testing.TB) store.Store {
	t.Helper()
	return store.NewGormStore(NewDB(t))
}

// SeedRefs returns reference data knowing the fixture product, process,
// operator and the equipment E1 and E2.
func SeedRefs() *refdata.Memory {
	return refdata.NewMemory().
		Add(refdata.EntityProduct, Tenant, Product).
		Add(refdata.EntityProcess, Tenant, Process).
		Add(refdata.EntityOperator, Tenant, Operator).
		Add(refdata.EntityEquipment, Tenant, Equipment, "E2")
}

// At returns 2024-05-06 at the given wall clock time in UTC.
func At(hour, minute, second int) time.Time {
	return time.Date(2024, 5, 6, hour, minute, second, 0, time.UTC)
}
