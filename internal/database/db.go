// Package database handles SQLite connection setup and management.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sql.DB connection with additional functionality.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database and applies migrations.
// The special path ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	memory := path == ":memory:"

	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	if memory {
		dsn = "file::memory:?_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, and sqlite serialises writers anyway.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, path: path}

	if err := db.configure(memory); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// configure sets up SQLite pragmas.
func (db *DB) configure(memory bool) error {
	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.path != ":memory:" {
		// Best effort; a failed checkpoint is replayed on next open.
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return db.DB.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// WithTx runs fn inside a transaction, committing on success.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
