package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Options selects and tunes the backing database.
type Options struct {
	Driver  string // sqlite | postgres
	Path    string // SQLite file
	DSN     string // Postgres connection string
	Tracing bool   // register the OpenTelemetry GORM plugin
	Silent  bool   // suppress GORM's own logging
}

// Open connects to the configured database and returns it as a Store.
func Open(opts Options) (*GormStore, error) {
	cfg := &gorm.Config{TranslateError: true}
	if opts.Silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	} else {
		cfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "sqlite":
		db, err = OpenSQLite(opts.Path, cfg)
	case "postgres", "postgresql":
		db, err = openPostgres(opts.DSN, cfg)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("store: tracing plugin: %w", err)
		}
	}
	return NewGormStore(db), nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string, cfg *gorm.Config) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	if cfg == nil {
		cfg = &gorm.Config{}
	}

	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	pool(db, 10)
	return db, nil
}

func openPostgres(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store: postgres requires a DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	pool(db, 25)
	return db, nil
}

func pool(db *gorm.DB, n int) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(n)
		sqlDB.SetMaxIdleConns(n)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}
