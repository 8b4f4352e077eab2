// Package sqlstore is the persistence layer: a single embedded SQLite
// database backing the event timeline, rule/override/pricing/budget
// tables, and application settings. Each domain package's Repository
// port has one implementation here.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the embedded database connection. SQLite allows only one
// writer at a time; database/sql's pool already serializes writers
// against a single file, so no extra in-process mutex is needed here
// (unlike the teacher's FileStateStore, which guards a bare file with
// its own mutex because os.WriteFile has no such serialization built in).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file's parent directory if needed, opens
// the connection, and runs any pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers

	store := &Store{db: db, logger: logger}
	if err := store.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for repository constructors.
func (s *Store) DB() *sql.DB {
	return s.db
}
