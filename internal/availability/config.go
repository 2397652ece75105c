// Package availability turns working-hour rules and live provider busy
// intervals into bookable slots.
package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/util"
)

// Defaults used when an account carries no availability rules.
const (
	DefaultSlotMinutes        = 30
	DefaultAdvanceBookingDays = 30
	DefaultDayStart           = "08:00"
	DefaultDayEnd             = "18:00"

	minSlotMinutes = 5
	maxSlotMinutes = 480
)

// Config is the availability rule set stored under the "availability" key
// of an account's configuration.
type Config struct {
	Enabled             bool                   `json:"enabled"`
	SlotDurationMinutes int                    `json:"slot_duration_minutes"`
	AdvanceBookingDays  int                    `json:"advance_booking_days"`
	Schedule            map[string]DaySchedule `json:"schedule"`
	Holidays            []string               `json:"holidays,omitempty"`
	BlockedSlots        []BlockedSlot          `json:"blocked_slots,omitempty"`
}

// DaySchedule is one weekday's working hours. Days without both Start and
// End yield no slots.
type DaySchedule struct {
	Enabled bool    `json:"enabled"`
	Start   string  `json:"start,omitempty"`
	End     string  `json:"end,omitempty"`
	Breaks  []Break `json:"breaks,omitempty"`
}

// Break removes slots starting in [Start, End).
type Break struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BlockedSlot is a manual block on one date.
type BlockedSlot struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Default returns Mon-Fri 08:00-18:00 with 30 minute slots.
func Default() *Config {
	cfg := &Config{
		Enabled:             true,
		SlotDurationMinutes: DefaultSlotMinutes,
		AdvanceBookingDays:  DefaultAdvanceBookingDays,
		Schedule:            make(map[string]DaySchedule, 7),
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		workday := d != time.Saturday && d != time.Sunday
		day := DaySchedule{Enabled: workday}
		if workday {
			day.Start, day.End = DefaultDayStart, DefaultDayEnd
		}
		cfg.Schedule[dayKey(d)] = day
	}
	return cfg
}

func dayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// Day returns the schedule for weekday d.
func (c *Config) Day(d time.Weekday) (DaySchedule, bool) {
	day, ok := c.Schedule[dayKey(d)]
	return day, ok
}

// SlotDuration returns the slot length.
func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.SlotDurationMinutes) * time.Minute
}

// IsHoliday reports whether date's calendar day is a configured holiday.
func (c *Config) IsHoliday(date time.Time) bool {
	key := date.Format("2006-01-02")
	for _, h := range c.Holidays {
		if strings.TrimSpace(h) == key {
			return true
		}
	}
	return false
}

// Validate checks durations, clock strings and ranges.
func (c *Config) Validate() error {
	if c.SlotDurationMinutes < minSlotMinutes || c.SlotDurationMinutes > maxSlotMinutes {
		return fmt.Errorf("slot duration must be between %d and %d minutes", minSlotMinutes, maxSlotMinutes)
	}
	if c.AdvanceBookingDays < 0 {
		return fmt.Errorf("advance booking days cannot be negative")
	}

	valid := make(map[string]bool, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		valid[dayKey(d)] = true
	}
	for name, day := range c.Schedule {
		if !valid[name] {
			return fmt.Errorf("unknown weekday %q", name)
		}
		if err := day.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	for _, h := range c.Holidays {
		if _, err := util.ParseDate(h, time.UTC); err != nil {
			return fmt.Errorf("holiday: %w", err)
		}
	}
	for _, b := range c.BlockedSlots {
		if _, err := util.ParseDate(b.Date, time.UTC); err != nil {
			return fmt.Errorf("blocked slot: %w", err)
		}
		if _, _, err := clockRange(b.Start, b.End); err != nil {
			return fmt.Errorf("blocked slot %s: %w", b.Date, err)
		}
	}
	return nil
}

func (d DaySchedule) validate() error {
	if d.Start == "" && d.End == "" {
		if len(d.Breaks) > 0 {
			return fmt.Errorf("breaks require working hours")
		}
		return nil
	}
	start, end, err := clockRange(d.Start, d.End)
	if err != nil {
		return err
	}
	for _, b := range d.Breaks {
		bs, be, err := clockRange(b.Start, b.End)
		if err != nil {
			return fmt.Errorf("break: %w", err)
		}
		if bs < start || be > end {
			return fmt.Errorf("break %s-%s outside working hours", b.Start, b.End)
		}
	}
	return nil
}

// clockRange parses an HH:MM pair into minutes and requires start < end.
func clockRange(start, end string) (int, int, error) {
	s, err := util.ParseClock(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := util.ParseClock(end)
	if err != nil {
		return 0, 0, err
	}
	if s >= e {
		return 0, 0, fmt.Errorf("%s must be before %s", start, end)
	}
	return s, e, nil
}

// storedConfig overlays a stored blob on Default. Absent fields keep the
// default; a present schedule replaces the default one.
type storedConfig struct {
	Enabled             *bool                  `json:"enabled"`
	SlotDurationMinutes *int                   `json:"slot_duration_minutes"`
	AdvanceBookingDays  *int                   `json:"advance_booking_days"`
	Schedule            map[string]DaySchedule `json:"schedule"`
	Holidays            []string               `json:"holidays"`
	BlockedSlots        []BlockedSlot          `json:"blocked_slots"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// FromAccount reads the account's availability rules, falling back to
// Default when none are stored. Malformed rules are a ConfigurationError.
func FromAccount(account *calendar.ProviderAccount) (*Config, error) {
	cfg := Default()
	raw, ok := account.Configuration[calendar.ConfigAvailability]
	if !ok || raw == nil {
		return cfg, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, invalidConfig(account, err)
	}
	var stored storedConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, invalidConfig(account, err)
	}

	set(&cfg.Enabled, stored.Enabled)
	set(&cfg.SlotDurationMinutes, stored.SlotDurationMinutes)
	set(&cfg.AdvanceBookingDays, stored.AdvanceBookingDays)
	if stored.Schedule != nil {
		cfg.Schedule = make(map[string]DaySchedule, len(stored.Schedule))
		for name, day := range stored.Schedule {
			cfg.Schedule[strings.ToLower(name)] = day
		}
	}
	cfg.Holidays = stored.Holidays
	cfg.BlockedSlots = stored.BlockedSlots

	if err := cfg.Validate(); err != nil {
		return nil, invalidConfig(account, err)
	}
	return cfg, nil
}

func invalidConfig(account *calendar.ProviderAccount, err error) error {
	return &calendar.ConfigurationError{
		Reason: fmt.Sprintf("account %s availability: %v", account.ID, err),
		Err:    err,
	}
}
