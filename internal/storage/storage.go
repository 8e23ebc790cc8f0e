// Package storage provides the object store for ServerHub on sqlite.
//
// It persists the schema (attributes, servertypes, constraint rows), the
// server objects with their relational attribute values, the IP-range table
// for segment assignment, and the append-only change journal. Multi-row
// atomicity for the creation pipeline and the commit engine comes from
// sqlite transactions via Transaction.
package storage

import (
	"context"
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"evalgo.org/serverhub/internal/config"
)

// Store wraps the sqlite database and provides type-safe operations for
// ServerHub entities. A Store handed out by Transaction shares the
// transaction's connection; all writes through it commit or roll back
// together.
type Store struct {
	db    *gorm.DB
	debug bool
}

// Open opens a sqlite database at the given path.
func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
}

// New opens the configured database, runs migrations and returns a ready
// Store.
func New(cfg *config.Config) (*Store, error) {
	dsn := cfg.Database.Path
	if cfg.Database.BusyTimeout > 0 {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)", dsn, cfg.Database.BusyTimeout)
	}
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db, debug: cfg.Server.Debug}, nil
}

// NewWithDB wraps an already-open database. Used by tests.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// debugLog logs a message only if debug mode is enabled in config
func (s *Store) debugLog(format string, args ...interface{}) {
	if s.debug {
		log.Printf(format, args...)
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside one database transaction. The Store passed to
// fn issues every read and write on that transaction, which is what makes
// the commit engine's check-then-act old-value comparison reliable.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, debug: s.debug})
	})
}
