// Package repo implements the document store on top of GORM. The same
// schema runs on SQLite (pure Go driver), PostgreSQL and MySQL.
//
// This file contains database bootstrapping: driver selection, SQLite
// PRAGMAs, pool tuning, tracing, and schema migration.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-meal-backend/internal/config"
	"github.com/tbourn/go-meal-backend/internal/domain"
)

// Open connects to the SQL store described by cfg, installs the tracing
// plugin, and tunes the connection pool.
func Open(cfg config.StoreConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch cfg.Driver {
	case "sqlite", "":
		return OpenSQLite(cfg.DSN)
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.DSN), gcfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	tunePool(db, 25)
	return db, nil
}

// sqlitePragmas are applied to every SQLite connection pool on open.
var sqlitePragmas = []string{
	"journal_mode=WAL",
	"synchronous=NORMAL",
	"foreign_keys=ON",
	"busy_timeout=5000",
}

// OpenSQLite opens (or creates) a SQLite database and applies sqlitePragmas.
// The parent directory must exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	for _, p := range sqlitePragmas {
		if err := db.Exec("PRAGMA " + p).Error; err != nil {
			return nil, fmt.Errorf("sqlite pragma %s: %w", p, err)
		}
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	tunePool(db, 10)
	return db, nil
}

func tunePool(db *gorm.DB, maxOpen int) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

// AutoMigrate creates or updates every table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(domain.All()...)
}
