package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mes-execution-backend/config"
	"mes-execution-backend/internal/model"
)

// Open connects to the configured database without migrating it.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// Init connects to the database and runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, cfg, log); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema. CHECK constraints are only applied on
// postgres.
func Migrate(db *gorm.DB, cfg *config.DatabaseConfig, log *zap.Logger) error {
	log.Info("Running database migrations...")
	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnableConstraints && db.Dialector.Name() == "postgres" {
		log.Info("Applying postgres constraints...")
		if err := applyPostgresDDL(db); err != nil {
			log.Warn("Failed to apply some constraints; continuing without them", zap.Error(err))
		}
	}

	log.Info("Database initialization complete.")
	return nil
}

type checkConstraint struct {
	table string
	name  string
	check string
}

var postgresConstraints = []checkConstraint{
	{"work_orders", "chk_work_order_planned_window", "planned_start_date < planned_end_date"},
	{"work_orders", "chk_work_order_conservation", "actual_quantity = good_quantity + defect_quantity AND good_quantity >= 0 AND defect_quantity >= 0"},
	{"work_results", "chk_work_result_window", "work_start_time < work_end_time"},
	{"work_results", "chk_work_result_conservation", "quantity = good_quantity + defect_quantity"},
	{"downtime_events", "chk_downtime_window", "end_time IS NULL OR end_time > start_time"},
	{"downtime_events", "chk_downtime_resolved_has_end", "NOT is_resolved OR end_time IS NOT NULL"},
}

func applyPostgresDDL(db *gorm.DB) error {
	for _, c := range postgresConstraints {
		var exists int64
		if err := db.Raw("SELECT COUNT(*) FROM pg_constraint WHERE conname = ?", c.name).Scan(&exists).Error; err != nil {
			return fmt.Errorf("failed to look up constraint %s: %w", c.name, err)
		}
		if exists > 0 {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s);", c.table, c.name, c.check)
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
