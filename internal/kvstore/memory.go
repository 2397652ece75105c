package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/dtorcivia/calbook/internal/util"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is a process-local Store.
type Memory struct {
	mu      sync.Mutex
	clock   util.Clock
	entries map[string]memoryEntry
}

// NewMemory returns an empty Memory store. A nil clock uses the wall clock.
func NewMemory(clock util.Clock) *Memory {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Memory{clock: clock, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.expired(m.clock.Now()) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Take(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.entries, key)
	if e.expired(m.clock.Now()) {
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Purge(_ context.Context) (int64, error) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}
