// Package refdata checks references into master data owned outside the
// execution core.
package refdata

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"mes-execution-backend/internal/apperr"
	"mes-execution-backend/internal/model"
)

// Entity names a kind of reference data.
type Entity string

const (
	EntityProduct   Entity = "product"
	EntityProcess   Entity = "process"
	EntityEquipment Entity = "equipment"
	EntityOperator  Entity = "operator"
)

// Checker verifies that referenced master data exists and is active in the
// tenant. A missing or inactive reference yields a NotFound error.
type Checker interface {
	Product(ctx context.Context, tenantID, id string) error
	Process(ctx context.Context, tenantID, id string) error
	Equipment(ctx context.Context, tenantID, id string) error
	Operator(ctx context.Context, tenantID, id string) error
}

// GormChecker reads the reference tables and caches positive answers.
type GormChecker struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewGormChecker creates a checker whose positive lookups live for ttl.
func NewGormChecker(db *gorm.DB, ttl time.Duration) *GormChecker {
	return &GormChecker{
		db:    db,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *GormChecker) Product(ctx context.Context, tenantID, id string) error {
	return c.check(ctx, EntityProduct, &model.Product{}, tenantID, id)
}

func (c *GormChecker) Process(ctx context.Context, tenantID, id string) error {
	return c.check(ctx, EntityProcess, &model.Process{}, tenantID, id)
}

func (c *GormChecker) Equipment(ctx context.Context, tenantID, id string) error {
	return c.check(ctx, EntityEquipment, &model.Equipment{}, tenantID, id)
}

func (c *GormChecker) Operator(ctx context.Context, tenantID, id string) error {
	return c.check(ctx, EntityOperator, &model.Employee{}, tenantID, id)
}

func (c *GormChecker) check(ctx context.Context, entity Entity, table any, tenantID, id string) error {
	key := string(entity) + "/" + tenantID + "/" + id
	if _, found := c.cache.Get(key); found {
		return nil
	}

	var count int64
	err := c.db.WithContext(ctx).Model(table).
		Where("tenant_id = ? AND id = ? AND is_active = ?", tenantID, id, true).
		Count(&count).Error
	if err != nil {
		return apperr.FromContext(err, "lookup "+string(entity))
	}
	if count == 0 {
		return apperr.NotFound(string(entity), id)
	}
	c.cache.Set(key, struct{}{}, cache.DefaultExpiration)
	return nil
}

// Memory is an in-memory Checker, used when reference data is seeded by hand.
type Memory struct {
	mu   sync.RWMutex
	refs map[string]struct{}
}

// NewMemory creates an empty in-memory checker.
func NewMemory() *Memory {
	return &Memory{refs: make(map[string]struct{})}
}

// Add registers ids of the given entity as existing in the tenant.
func (m *Memory) Add(entity Entity, tenantID string, ids ...string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.refs[string(entity)+"/"+tenantID+"/"+id] = struct{}{}
	}
	return m
}

func (m *Memory) Product(ctx context.Context, tenantID, id string) error {
	return m.check(ctx, EntityProduct, tenantID, id)
}

func (m *Memory) Process(ctx context.Context, tenantID, id string) error {
	return m.check(ctx, EntityProcess, tenantID, id)
}

func (m *Memory) Equipment(ctx context.Context, tenantID, id string) error {
	return m.check(ctx, EntityEquipment, tenantID, id)
}

func (m *Memory) Operator(ctx context.Context, tenantID, id string) error {
	return m.check(ctx, EntityOperator, tenantID, id)
}

func (m *Memory) check(ctx context.Context, entity Entity, tenantID, id string) error {
	if err := ctx.Err(); err != nil {
		return apperr.FromContext(err, "lookup "+string(entity))
	}
	m.mu.RLock()
	_, ok := m.refs[string(entity)+"/"+tenantID+"/"+id]
	m.mu.RUnlock()
	if !ok {
		return apperr.NotFound(string(entity), id)
	}
	return nil
}
