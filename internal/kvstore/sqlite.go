package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtorcivia/calbook/internal/database"
	"github.com/dtorcivia/calbook/internal/util"
)

// SQLite stores entries in the kv_entries table. Expiry is kept as unix
// milliseconds; 0 means no expiry.
type SQLite struct {
	db    *database.DB
	clock util.Clock
}

// NewSQLite returns a Store backed by db.
func NewSQLite(db *database.DB, clock util.Clock) *SQLite {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &SQLite{db: db, clock: clock}
}

func (s *SQLite) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.clock.Now().Add(ttl).UnixMilli()
}

func (s *SQLite) live(expiresAt int64) bool {
	return expiresAt == 0 || s.clock.Now().UnixMilli() < expiresAt
}

func (s *SQLite) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, s.expiry(ttl))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv_entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if !s.live(expiresAt) {
		return nil, ErrNotFound
	}
	return value, nil
}

// Take deletes and returns the row in one statement.
func (s *SQLite) Take(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `DELETE FROM kv_entries WHERE key = ? RETURNING value, expires_at`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take %s: %w", key, err)
	}
	if !s.live(expiresAt) {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at > 0 AND expires_at <= ?`, s.clock.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired entries: %w", err)
	}
	return res.RowsAffected()
}
