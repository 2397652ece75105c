// Package util provides utility functions for the application.
package util

import (
	"fmt"
	"sync"
	"time"
	// Embed timezone database for containers without tzdata
	_ "time/tzdata"
)

// DefaultTimezone is used when an account carries no timezone.
const DefaultTimezone = "America/Guayaquil"

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

// LoadLocation resolves an IANA zone name, falling back to DefaultTimezone
// when name is empty. Results are cached.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}

	locMu.RLock()
	loc, ok := locCache[name]
	locMu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}

	locMu.Lock()
	locCache[name] = loc
	locMu.Unlock()
	return loc, nil
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AtClock returns the instant minutes after midnight on day's date in loc.
func AtClock(day time.Time, minutes int, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)
}

// SQLiteTimestamp formats a time for SQLite (ISO8601).
func SQLiteTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// ParseSQLiteTimestamp parses a SQLite timestamp.
func ParseSQLiteTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05", s)
}
