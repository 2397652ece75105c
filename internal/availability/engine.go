package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/metrics"
	"github.com/dtorcivia/calbook/internal/util"
)

// Policy decides what a failed busy-interval fetch does to a request.
type Policy string

const (
	// DegradeOnBusyFailure treats the day as having no busy intervals.
	DegradeOnBusyFailure Policy = "degrade"
	// FailOnBusyFailure returns the fetch error to the caller.
	FailOnBusyFailure Policy = "fail"
)

// ParsePolicy accepts "degrade", "fail" or empty (degrade).
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", DegradeOnBusyFailure:
		return DegradeOnBusyFailure, nil
	case FailOnBusyFailure:
		return FailOnBusyFailure, nil
	}
	return "", fmt.Errorf("unknown busy failure policy %q", s)
}

// ClientResolver picks the provider client for an account.
type ClientResolver interface {
	For(account *calendar.ProviderAccount) (calendar.Client, error)
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Clients         ClientResolver
	DefaultTimezone string
	Policy          Policy
	Metrics         *metrics.Metrics
	Logger          *util.Logger
}

// Engine computes bookable slots for one account and date.
type Engine struct {
	clients         ClientResolver
	defaultTimezone string
	policy          Policy
	metrics         *metrics.Metrics
	logger          *util.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		clients:         cfg.Clients,
		defaultTimezone: cfg.DefaultTimezone,
		policy:          cfg.Policy,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
	if e.defaultTimezone == "" {
		e.defaultTimezone = util.DefaultTimezone
	}
	if e.policy == "" {
		e.policy = DegradeOnBusyFailure
	}
	if e.logger == nil {
		e.logger = util.GetDefaultLogger()
	}
	return e
}

// Location returns the zone slots are computed in for account.
func (e *Engine) Location(account *calendar.ProviderAccount) (*time.Location, error) {
	name := account.Timezone()
	if name == "" {
		name = e.defaultTimezone
	}
	loc, err := util.LoadLocation(name)
	if err != nil {
		return nil, &calendar.ConfigurationError{Reason: fmt.Sprintf("account %s: %v", account.ID, err), Err: err}
	}
	return loc, nil
}

// GetAvailableSlots returns the bookable slots on date's calendar day, laid
// out in the account's timezone, in chronological order. An empty result is not
// an error.
func (e *Engine) GetAvailableSlots(ctx context.Context, account *calendar.ProviderAccount, date time.Time) ([]calendar.TimeSlot, error) {
	cfg, err := FromAccount(account)
	if err != nil {
		return nil, err
	}
	loc, err := e.Location(account)
	if err != nil {
		return nil, err
	}

	day := util.StartOfDay(date, loc)
	candidates := theoreticalSlots(cfg, day, loc)
	if len(candidates) == 0 {
		return []calendar.TimeSlot{}, nil
	}

	busy, err := e.busy(ctx, account, day, loc)
	if err != nil {
		return nil, err
	}
	blocked := blockedOn(cfg, day, loc)

	slots := make([]calendar.TimeSlot, 0, len(candidates))
	for _, slot := range candidates {
		if overlapsAny(slot, busy) || overlapsAny(slot, blocked) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// IsSlotAvailable reports whether start is exactly the start of one of the
// day's available slots.
func (e *Engine) IsSlotAvailable(ctx context.Context, account *calendar.ProviderAccount, start time.Time) (bool, error) {
	loc, err := e.Location(account)
	if err != nil {
		return false, err
	}
	slots, err := e.GetAvailableSlots(ctx, account, start.In(loc))
	if err != nil {
		return false, err
	}
	for _, s := range slots {
		if s.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

// theoreticalSlots applies enabled flags, holidays, working hours and
// breaks. Slots never run past the end of the working day.
func theoreticalSlots(cfg *Config, day time.Time, loc *time.Location) []calendar.TimeSlot {
	if !cfg.Enabled || cfg.IsHoliday(day) {
		return nil
	}
	sched, ok := cfg.Day(day.Weekday())
	if !ok || !sched.Enabled || sched.Start == "" || sched.End == "" {
		return nil
	}
	start, end, err := clockRange(sched.Start, sched.End)
	if err != nil {
		return nil
	}

	type span struct{ start, end int }
	breaks := make([]span, 0, len(sched.Breaks))
	for _, b := range sched.Breaks {
		if bs, be, err := clockRange(b.Start, b.End); err == nil {
			breaks = append(breaks, span{bs, be})
		}
	}

	step := cfg.SlotDurationMinutes
	var slots []calendar.TimeSlot
	for m := start; m+step <= end; m += step {
		inBreak := false
		for _, b := range breaks {
			if m >= b.start && m < b.end {
				inBreak = true
				break
			}
		}
		if inBreak {
			continue
		}
		slots = append(slots, calendar.TimeSlot{
			Start: util.AtClock(day, m, loc),
			End:   util.AtClock(day, m+step, loc),
		})
	}
	return slots
}

func blockedOn(cfg *Config, day time.Time, loc *time.Location) []calendar.TimeSlot {
	key := day.Format("2006-01-02")
	var out []calendar.TimeSlot
	for _, b := range cfg.BlockedSlots {
		if b.Date != key {
			continue
		}
		s, e, err := clockRange(b.Start, b.End)
		if err != nil {
			continue
		}
		out = append(out, calendar.TimeSlot{Start: util.AtClock(day, s, loc), End: util.AtClock(day, e, loc)})
	}
	return out
}

func overlapsAny(slot calendar.TimeSlot, others []calendar.TimeSlot) bool {
	for _, o := range others {
		if slot.Overlaps(o) {
			return true
		}
	}
	return false
}

// busy fetches the provider's busy intervals for the whole day. Failures
// are counted and logged, then handled per the engine's Policy.
func (e *Engine) busy(ctx context.Context, account *calendar.ProviderAccount, day time.Time, loc *time.Location) ([]calendar.TimeSlot, error) {
	client, err := e.clients.For(account)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetFreeBusy(ctx, account, calendar.FreeBusyQuery{
		Start:    day,
		End:      day.AddDate(0, 0, 1),
		TimeZone: loc.String(),
	})
	if err == nil {
		busy := make([]calendar.TimeSlot, len(resp.Busy))
		for i, b := range resp.Busy {
			busy[i] = b.In(loc)
		}
		return busy, nil
	}

	e.metrics.BusyFetchFailure(account.Vendor)
	log := e.logger.WithFields(map[string]interface{}{
		"tenant_id":  account.TenantID,
		"vendor":     account.Vendor.Lower(),
		"account_id": account.ID,
	})

	if e.policy == FailOnBusyFailure {
		log.Error("Busy interval fetch failed", "date", day.Format("2006-01-02"), "error", err)
		return nil, fmt.Errorf("fetch busy intervals: %w", err)
	}
	log.Warn("Busy interval fetch failed, assuming no conflicts", "date", day.Format("2006-01-02"), "error", err)
	return nil, nil
}
