package availability

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/metrics"
	"github.com/dtorcivia/calbook/internal/util"
)

type fakeClient struct {
	busy    []calendar.TimeSlot
	err     error
	calls   atomic.Int32
	lastQry calendar.FreeBusyQuery
}

func (f *fakeClient) Vendor() calendar.Vendor { return calendar.VendorGoogle }

func (f *fakeClient) CreateEvent(context.Context, *calendar.ProviderAccount, *calendar.CalendarEvent) (*calendar.CalendarEventResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) UpdateEvent(context.Context, *calendar.ProviderAccount, string, *calendar.CalendarEvent) (*calendar.CalendarEventResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) DeleteEvent(context.Context, *calendar.ProviderAccount, string) error {
	return errors.New("not implemented")
}

func (f *fakeClient) GetEvent(context.Context, *calendar.ProviderAccount, string) (*calendar.CalendarEventResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) ListEvents(context.Context, *calendar.ProviderAccount, calendar.TimeWindow) ([]calendar.CalendarEventResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) GetFreeBusy(_ context.Context, _ *calendar.ProviderAccount, q calendar.FreeBusyQuery) (*calendar.FreeBusyResponse, error) {
	f.calls.Add(1)
	f.lastQry = q
	if f.err != nil {
		return nil, f.err
	}
	return &calendar.FreeBusyResponse{Start: q.Start, End: q.End, Busy: f.busy}, nil
}

var guayaquil = mustLoad("America/Guayaquil")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// monday is 2026-03-02.
func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, guayaquil)
}

func morningAccount() *calendar.ProviderAccount {
	return &calendar.ProviderAccount{
		ID:       "acc-1",
		TenantID: "tenant-1",
		Vendor:   calendar.VendorGoogle,
		Configuration: map[string]any{
			"timezone": "America/Guayaquil",
			"availability": map[string]any{
				"slot_duration_minutes": 30,
				"schedule": map[string]any{
					"monday": map[string]any{
						"enabled": true,
						"start":   "08:00",
						"end":     "12:00",
						"breaks":  []any{map[string]any{"start": "10:00", "end": "10:30"}},
					},
				},
			},
		},
	}
}

func newEngine(client *fakeClient, policy Policy, m *metrics.Metrics) *Engine {
	return NewEngine(EngineConfig{
		Clients: calendar.NewRouter(client),
		Policy:  policy,
		Metrics: m,
		Logger:  util.NewLoggerWithOutput(io.Discard, "debug", "text"),
	})
}

func starts(slots []calendar.TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.Format("15:04")
	}
	return out
}

func TestGetAvailableSlots_Scenario(t *testing.T) {
	client := &fakeClient{busy: []calendar.TimeSlot{{Start: at(9, 0), End: at(9, 45)}}}
	e := newEngine(client, DegradeOnBusyFailure, nil)

	slots, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:30", "10:30", "11:00", "11:30"}, starts(slots))
	for _, s := range slots {
		assert.Equal(t, 30*time.Minute, s.Duration())
		assert.Equal(t, "America/Guayaquil", s.Start.Location().String())
	}
}

func TestGetAvailableSlots_BusyEndingAtSlotStartDoesNotBlock(t *testing.T) {
	client := &fakeClient{busy: []calendar.TimeSlot{{Start: at(9, 0), End: at(9, 30)}}}
	e := newEngine(client, DegradeOnBusyFailure, nil)

	slots, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:30", "09:30", "10:30", "11:00", "11:30"}, starts(slots))
}

func TestGetAvailableSlots_QueriesWholeDayInAccountZone(t *testing.T) {
	client := &fakeClient{}
	e := newEngine(client, DegradeOnBusyFailure, nil)

	_, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(15, 0))
	require.NoError(t, err)
	assert.True(t, client.lastQry.Start.Equal(at(0, 0)))
	assert.True(t, client.lastQry.End.Equal(at(0, 0).AddDate(0, 0, 1)))
	assert.Equal(t, "America/Guayaquil", client.lastQry.TimeZone)
}

func TestGetAvailableSlots_ConvertsBusyIntoAccountZone(t *testing.T) {
	// 14:00Z is 09:00 in Guayaquil (UTC-5).
	busyUTC := calendar.TimeSlot{
		Start: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
	}
	e := newEngine(&fakeClient{busy: []calendar.TimeSlot{busyUTC}}, DegradeOnBusyFailure, nil)

	slots, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(0, 0))
	require.NoError(t, err)
	assert.NotContains(t, starts(slots), "09:00")
	assert.Contains(t, starts(slots), "09:30")
}

func TestGetAvailableSlots_Idempotent(t *testing.T) {
	client := &fakeClient{busy: []calendar.TimeSlot{{Start: at(9, 0), End: at(9, 45)}}}
	e := newEngine(client, DegradeOnBusyFailure, nil)

	first, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(0, 0))
	require.NoError(t, err)
	second, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(0, 0))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetAvailableSlots_DefaultConfig(t *testing.T) {
	account := &calendar.ProviderAccount{ID: "acc-2", Vendor: calendar.VendorGoogle}
	client := &fakeClient{}
	e := newEngine(client, DegradeOnBusyFailure, nil)

	slots, err := e.GetAvailableSlots(context.Background(), account, at(0, 0))
	require.NoError(t, err)
	require.Len(t, slots, 20)
	assert.Equal(t, "08:00", slots[0].Start.Format("15:04"))
	assert.Equal(t, "17:30", slots[19].Start.Format("15:04"))
	assert.Equal(t, "America/Guayaquil", client.lastQry.TimeZone)

	saturday := time.Date(2026, 3, 7, 0, 0, 0, 0, guayaquil)
	slots, err = e.GetAvailableSlots(context.Background(), account, saturday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGetAvailableSlots_EmptyDays(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg map[string]any)
		date   time.Time
	}{
		{
			name:   "globally disabled",
			mutate: func(cfg map[string]any) { cfg["enabled"] = false },
			date:   at(0, 0),
		},
		{
			name:   "holiday",
			mutate: func(cfg map[string]any) { cfg["holidays"] = []any{"2026-03-02"} },
			date:   at(0, 0),
		},
		{
			name: "disabled weekday",
			mutate: func(cfg map[string]any) {
				cfg["schedule"] = map[string]any{"monday": map[string]any{"enabled": false, "start": "08:00", "end": "12:00"}}
			},
			date: at(0, 0),
		},
		{
			name: "weekday without hours",
			mutate: func(cfg map[string]any) {
				cfg["schedule"] = map[string]any{"monday": map[string]any{"enabled": true}}
			},
			date: at(0, 0),
		},
		{
			name:   "weekday missing from schedule",
			mutate: func(map[string]any) {},
			date:   at(0, 0).AddDate(0, 0, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := morningAccount()
			tt.mutate(account.Configuration["availability"].(map[string]any))
			client := &fakeClient{}
			e := newEngine(client, FailOnBusyFailure, nil)

			slots, err := e.GetAvailableSlots(context.Background(), account, tt.date)
			require.NoError(t, err)
			assert.NotNil(t, slots)
			assert.Empty(t, slots)
			assert.Zero(t, client.calls.Load(), "no provider call for an empty day")
		})
	}
}

func TestGetAvailableSlots_BlockedSlotsMatchExactDate(t *testing.T) {
	account := morningAccount()
	account.Configuration["availability"].(map[string]any)["blocked_slots"] = []any{
		map[string]any{"date": "2026-03-02", "start": "08:15", "end": "08:45"},
		map[string]any{"date": "2026-03-09", "start": "11:00", "end": "12:00"},
	}
	e := newEngine(&fakeClient{}, DegradeOnBusyFailure, nil)

	slots, err := e.GetAvailableSlots(context.Background(), account, at(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00", "11:30"}, starts(slots))
}

func TestGetAvailableSlots_SlotsStayInsideWorkingHours(t *testing.T) {
	account := morningAccount()
	account.Configuration["availability"].(map[string]any)["slot_duration_minutes"] = 45
	e := newEngine(&fakeClient{}, DegradeOnBusyFailure, nil)

	slots, err := e.GetAvailableSlots(context.Background(), account, at(0, 0))
	require.NoError(t, err)
	// 10:15 starts inside the 10:00-10:30 break.
	assert.Equal(t, []string{"08:00", "08:45", "09:30", "11:00"}, starts(slots))
	for _, s := range slots {
		assert.False(t, s.End.After(at(12, 0)))
	}
}

func TestGetAvailableSlots_BreakEndIsExclusive(t *testing.T) {
	e := newEngine(&fakeClient{}, DegradeOnBusyFailure, nil)
	slots, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(0, 0))
	require.NoError(t, err)
	assert.NotContains(t, starts(slots), "10:00")
	assert.Contains(t, starts(slots), "10:30")
}

func TestBusyFailure_Degrade(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := &fakeClient{err: &calendar.APIError{Vendor: calendar.VendorGoogle, Status: 503, Temporary: true}}
	e := newEngine(client, DegradeOnBusyFailure, metrics.New(reg))

	slots, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:30", "09:00", "09:30", "10:30", "11:00", "11:30"}, starts(slots))

	count, err := testutil.GatherAndCount(reg, "calbook_busy_fetch_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBusyFailure_Fail(t *testing.T) {
	reg := prometheus.NewRegistry()
	authErr := &calendar.AuthenticationError{Vendor: calendar.VendorGoogle, Reason: "invalid_grant"}
	e := newEngine(&fakeClient{err: authErr}, FailOnBusyFailure, metrics.New(reg))

	_, err := e.GetAvailableSlots(context.Background(), morningAccount(), at(0, 0))
	require.Error(t, err)
	assert.True(t, calendar.IsAuthError(err))

	count, err := testutil.GatherAndCount(reg, "calbook_busy_fetch_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUnsupportedVendorIsConfigurationError(t *testing.T) {
	account := morningAccount()
	account.Vendor = calendar.VendorOutlook
	e := newEngine(&fakeClient{}, DegradeOnBusyFailure, nil)

	_, err := e.GetAvailableSlots(context.Background(), account, at(0, 0))
	var cfgErr *calendar.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, calendar.ErrUnsupportedVendor)
}

func TestInvalidTimezoneIsConfigurationError(t *testing.T) {
	account := morningAccount()
	account.Configuration["timezone"] = "Nowhere/Land"
	e := newEngine(&fakeClient{}, DegradeOnBusyFailure, nil)

	_, err := e.GetAvailableSlots(context.Background(), account, at(0, 0))
	var cfgErr *calendar.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestIsSlotAvailable(t *testing.T) {
	client := &fakeClient{busy: []calendar.TimeSlot{{Start: at(9, 0), End: at(9, 45)}}}
	e := newEngine(client, DegradeOnBusyFailure, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"slot boundary", at(8, 30), true},
		{"same instant in utc", at(11, 0).UTC(), true},
		{"busy", at(9, 0), false},
		{"break", at(10, 0), false},
		{"inside a slot", at(8, 15), false},
		{"after hours", at(12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := e.IsSlotAvailable(ctx, morningAccount(), tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DegradeOnBusyFailure, p)

	p, err = ParsePolicy("fail")
	require.NoError(t, err)
	assert.Equal(t, FailOnBusyFailure, p)

	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}
