package util

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"08:30", 510, false},
		{" 23:59 ", 1439, false},
		{"24:00", 0, true},
		{"8:30", 0, true},
		{"08:60", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidClock, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseDate(t *testing.T) {
	loc, err := LoadLocation("America/Guayaquil")
	require.NoError(t, err)

	d, err := ParseDate("2026-03-02", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), d)

	_, err = ParseDate("02/03/2026", loc)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, loc.String())

	again, err := LoadLocation(DefaultTimezone)
	require.NoError(t, err)
	assert.Same(t, loc, again)

	_, err = LoadLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestAtClockAndStartOfDay(t *testing.T) {
	loc, err := LoadLocation("America/Guayaquil")
	require.NoError(t, err)

	day := time.Date(2026, 3, 2, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), StartOfDay(day, loc))
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, loc), AtClock(day, 570, loc))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("ana@example.com"))
	assert.ErrorIs(t, ValidateEmail(""), ErrEmptyField)
	assert.ErrorIs(t, ValidateEmail("not-an-email"), ErrInvalidEmail)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Ana Pérez", SanitizeString("  Ana \t Pérez\n"))
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestSQLiteTimestamp(t *testing.T) {
	loc, err := LoadLocation("America/Guayaquil")
	require.NoError(t, err)

	ts := SQLiteTimestamp(time.Date(2026, 3, 2, 9, 0, 0, 0, loc))
	assert.Equal(t, "2026-03-02 14:00:00", ts)

	back, err := ParseSQLiteTimestamp(ts)
	require.NoError(t, err)
	assert.True(t, back.Equal(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOutput(&buf, "info", "json").With("tenant_id", "t1")

	l.Debug("hidden")
	l.Warn("Token refresh failed", "error", errors.New("invalid_grant"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"tenant_id":"t1"`)
	assert.Contains(t, out, `"error":"invalid_grant"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLogLevel("bogus"))
	assert.Equal(t, "error", LevelError.String())
}
