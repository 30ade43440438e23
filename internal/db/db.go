package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hotel-core-backend/config"
	"hotel-core-backend/internal/model"
)

// Init opens the configured database and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
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
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.Driver == "postgres" && cfg.EnableRangeIndex {
		log.Println("Range indexes enabled, applying PostgreSQL-specific DDL...")
		if err := applyRangeDDL(db); err != nil {
			log.Printf("Warning: failed to apply some range DDL: %v. Continuing without them.", err)
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate creates or updates every table owned by the core.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.RoomType{},
		&model.Room{},
		&model.Reservation{},
		&model.ReservationRoomLine{},
		&model.Folio{},
		&model.FolioItem{},
		&model.Payment{},
		&model.DeviceSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
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

func applyRangeDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		// Stay ranges are half-open, matching the overlap test used by availability.
		"CREATE INDEX IF NOT EXISTS idx_reservations_stay_range ON reservations " +
			"USING GIST (property_id, daterange(check_in_date, check_out_date, '[)'));",

		// Only confirmed and checked-in stays hold room claims.
		"CREATE INDEX IF NOT EXISTS idx_reservations_active ON reservations (property_id, check_in_date) " +
			"WHERE status IN ('confirmed', 'checked_in');",

		"CREATE INDEX IF NOT EXISTS idx_folio_items_open ON folio_items (folio_id) WHERE NOT voided;",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
