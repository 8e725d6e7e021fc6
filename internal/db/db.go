package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/model"
)

// Init opens the configured database and runs migrations.
func Init(cfg *config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	log.Info("Running database migrations...")
	if err := Migrate(db, log); err != nil {
		return nil, err
	}

	log.Info("Database initialization complete.")
	return db, nil
}

// Open connects to postgres or sqlite depending on cfg.Driver and sizes the pool.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
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

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB, log logrus.FieldLogger) error {
	if err := db.AutoMigrate(
		&model.AmbulanceRequest{},
		&model.LocationPing{},
		&model.StatusChangeEvent{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := applyPostgresDDL(db); err != nil {
			log.WithError(err).Warn("failed to apply some postgres DDL, continuing without it")
		}
	}
	return nil
}

// applyPostgresDDL adds the descending indexes behind the latest-ping and
// latest-event lookups. AutoMigrate cannot express sort order.
func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		`CREATE INDEX IF NOT EXISTS idx_pings_latest ON ambulance_locations (ambulance_id, "timestamp" DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_status_events_latest ON status_updates (ambulance_id, new_status, "timestamp" DESC);`,
		"CREATE INDEX IF NOT EXISTS idx_requests_in_flight ON ambulance_requests (status) WHERE deleted_at IS NULL AND status = 'Patient Received';",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
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
