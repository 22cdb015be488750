package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"facegate/config"
	"facegate/internal/core/models"

	"github.com/glebarez/sqlite" // Pure Go SQLite Treiber
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open öffnet die SQLite-Datenbank und führt die Migrationen aus
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("database file is not configured")
	}

	// Sicherstellen, dass das Verzeichnis für die Datenbankdatei existiert
	dbDir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Konfiguration des GORM-Loggers
	gormLogger := logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.File)

	db, err := gorm.Open(sqlite.Open(cfg.File), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	// SQLite: ein Schreiber
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate führt die Auto-Migrationen durch
func Migrate(db *gorm.DB) error {
	log.Debug("Running database migrations...")
	if err := db.AutoMigrate(
		&models.Identity{},
		&models.RegistryMeta{},
		&models.VerificationEvent{},
	); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// Close schließt die zugrunde liegende Verbindung
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
