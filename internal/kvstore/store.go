// Package kvstore provides expiring key/value storage for short-lived
// records such as authorization state and scheduling sessions. Take is
// atomic in every backend, so a value can be consumed exactly once.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for missing and expired keys.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is an expiring key/value store. A zero ttl means no expiry.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Purge removes expired entries and reports how many were dropped.
	Purge(ctx context.Context) (int64, error)
}
