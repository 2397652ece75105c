package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorcivia/calbook/internal/accounts"
	"github.com/dtorcivia/calbook/internal/availability"
	"github.com/dtorcivia/calbook/internal/booking"
	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/config"
	"github.com/dtorcivia/calbook/internal/server/middleware"
	"github.com/dtorcivia/calbook/internal/util"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeConnector struct {
	tenant       string
	vendor       calendar.Vendor
	completeErr  error
	disconnected string
}

func (f *fakeConnector) Begin(_ context.Context, tenantID string, vendor calendar.Vendor) (string, error) {
	f.tenant, f.vendor = tenantID, vendor
	return "https://consent.example/authorize?state=abc", nil
}

func (f *fakeConnector) Complete(_ context.Context, state, code string) (*calendar.ProviderAccount, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &calendar.ProviderAccount{
		ID:            "acc_1",
		TenantID:      "t1",
		Vendor:        calendar.VendorGoogle,
		AccountEmail:  "owner@example.com",
		AccessToken:   "secret-access",
		RefreshToken:  "secret-refresh",
		Configuration: map[string]any{calendar.ConfigTimezone: "America/Guayaquil"},
		Active:        true,
	}, nil
}

func (f *fakeConnector) Disconnect(_ context.Context, id string) error {
	if id == "missing" {
		return accounts.ErrNotFound
	}
	f.disconnected = id
	return nil
}

type fakeAccounts struct{ account *calendar.ProviderAccount }

func (f *fakeAccounts) Get(_ context.Context, id string) (*calendar.ProviderAccount, error) {
	if f.account == nil || f.account.ID != id {
		return nil, accounts.ErrNotFound
	}
	return f.account, nil
}

func (f *fakeAccounts) ListByTenant(_ context.Context, tenantID string) ([]*calendar.ProviderAccount, error) {
	if f.account == nil || f.account.TenantID != tenantID {
		return nil, nil
	}
	return []*calendar.ProviderAccount{f.account}, nil
}

type fakeConfigs struct{ saved *availability.Config }

func (f *fakeConfigs) Load(*calendar.ProviderAccount) (*availability.Config, error) {
	return availability.Default(), nil
}

func (f *fakeConfigs) Save(_ context.Context, _ *calendar.ProviderAccount, cfg *availability.Config) error {
	if err := cfg.Validate(); err != nil {
		return &calendar.ConfigurationError{Reason: err.Error()}
	}
	f.saved = cfg
	return nil
}

type fakeBookings struct {
	booked   *booking.Request
	bookErr  error
	date     time.Time
	canceled string
}

func (f *fakeBookings) Slots(_ context.Context, _ string, date time.Time) ([]calendar.TimeSlot, error) {
	f.date = date
	start := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	return []calendar.TimeSlot{{Start: start, End: start.Add(30 * time.Minute)}}, nil
}

func (f *fakeBookings) Book(_ context.Context, req booking.Request) (*booking.Confirmation, error) {
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	f.booked = &req
	return &booking.Confirmation{EventID: "evt_1", Text: "confirmed"}, nil
}

func (f *fakeBookings) Cancel(_ context.Context, _, eventID string) error {
	if eventID == "gone" {
		return calendar.ErrEventNotFound
	}
	f.canceled = eventID
	return nil
}

type fakeSessions struct {
	saved   *booking.Session
	cleared string
}

func (f *fakeSessions) Save(_ context.Context, s *booking.Session) error {
	f.saved = s
	return nil
}

func (f *fakeSessions) Load(_ context.Context, id string) (*booking.Session, error) {
	if f.saved == nil || f.saved.ConversationID != id {
		return nil, booking.ErrSessionNotFound
	}
	return f.saved, nil
}

func (f *fakeSessions) Clear(_ context.Context, id string) error {
	f.cleared = id
	return nil
}

type fixture struct {
	connector *fakeConnector
	accounts  *fakeAccounts
	configs   *fakeConfigs
	bookings  *fakeBookings
	sessions  *fakeSessions
	handler   http.Handler
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	util.SetDefaultLogger(util.NewLoggerWithOutput(io.Discard, "error", "text"))

	f := &fixture{
		connector: &fakeConnector{},
		accounts: &fakeAccounts{account: &calendar.ProviderAccount{
			ID: "acc_1", TenantID: "t1", Vendor: calendar.VendorOutlook, Active: true,
			AccessToken: "secret-access",
		}},
		configs:  &fakeConfigs{},
		bookings: &fakeBookings{},
		sessions: &fakeSessions{},
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "calbook_test_total", Help: "test"}))

	deps := Deps{
		DB:           fakePinger{},
		Connector:    f.connector,
		Accounts:     f.accounts,
		Availability: f.configs,
		Bookings:     f.bookings,
		Sessions:     f.sessions,
		Gatherer:     reg,
		Logger:       util.NewLoggerWithOutput(io.Discard, "error", "text"),
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.handler = New(deps).Handler()
	return f
}

func (f *fixture) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return e["code"].(string)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newFixture(t, func(d *Deps) { d.DB = fakePinger{err: errors.New("disk gone")} })
	rec = down.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calbook_test_total")
}

func TestConnect(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/tenants/t1/connect/outlook", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://consent.example/authorize?state=abc", decode(t, rec)["authorization_url"])
	assert.Equal(t, "t1", f.connector.tenant)
	assert.Equal(t, calendar.VendorOutlook, f.connector.vendor)

	rec = f.do(http.MethodPost, "/api/tenants/t1/connect/yahoo", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNSUPPORTED_VENDOR", errorCode(t, rec))
}

func TestCallback(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/oauth/google/callback?state=s&code=c", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	body := decode(t, rec)
	assert.Equal(t, "acc_1", body["id"])
	assert.Equal(t, "google", body["vendor"])
	assert.Equal(t, true, body["has_refresh_token"])

	rec = f.do(http.MethodGet, "/oauth/google/callback?error=access_denied", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AUTHORIZATION_DENIED", errorCode(t, rec))

	rec = f.do(http.MethodGet, "/oauth/google/callback?state=s", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.connector.completeErr = &calendar.InvalidStateError{Reason: "unknown state"}
	rec = f.do(http.MethodGet, "/oauth/google/callback?state=s&code=c", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AUTHORIZATION_EXPIRED", errorCode(t, rec))
}

func TestAccounts(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/tenants/t1/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-access")
	assert.Len(t, decode(t, rec)["accounts"], 1)

	rec = f.do(http.MethodGet, "/api/tenants/nobody/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["accounts"])

	rec = f.do(http.MethodDelete, "/api/accounts/acc_1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "acc_1", f.connector.disconnected)

	rec = f.do(http.MethodDelete, "/api/accounts/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityConfig(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/accounts/acc_1/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 30, decode(t, rec)["slot_duration_minutes"])

	rec = f.do(http.MethodPut, "/api/accounts/acc_1/availability", `{"slot_duration_minutes":45,"advance_booking_days":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, f.configs.saved)
	assert.Equal(t, 45, f.configs.saved.SlotDurationMinutes)

	rec = f.do(http.MethodPut, "/api/accounts/acc_1/availability", `{"slot_duration_minutes":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPut, "/api/accounts/acc_1/availability", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = f.do(http.MethodGet, "/api/accounts/nope/availability", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlots(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/tenants/t1/availability?date=2026-03-02&conversation_id=conv-1&contact_id=c-9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "2026-03-02", body["date"])
	assert.Len(t, body["slots"], 1)
	assert.Equal(t, 2, f.bookings.date.Day())

	require.NotNil(t, f.sessions.saved)
	assert.Equal(t, "conv-1", f.sessions.saved.ConversationID)
	assert.Equal(t, "c-9", f.sessions.saved.ContactID)
	assert.Len(t, f.sessions.saved.OfferedSlots, 1)

	rec = f.do(http.MethodGet, "/api/tenants/t1/availability?date=March", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBook(t *testing.T) {
	f := newFixture(t, nil)
	f.sessions.saved = &booking.Session{ConversationID: "conv-1", TenantID: "t1", ContactID: "c-9"}

	rec := f.do(http.MethodPost, "/api/tenants/t1/bookings",
		`{"start":"2026-03-02T08:00","description":"checkup","conversation_id":"conv-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "evt_1", decode(t, rec)["event_id"])

	require.NotNil(t, f.bookings.booked)
	assert.Equal(t, "c-9", f.bookings.booked.ContactID)
	assert.Equal(t, 8, f.bookings.booked.LocalDateTime.Hour())
	assert.Equal(t, "checkup", f.bookings.booked.Description)
	assert.Equal(t, "conv-1", f.sessions.cleared)

	rec = f.do(http.MethodPost, "/api/tenants/t1/bookings", `{"start":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBook_DomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{booking.ErrSlotUnavailable, http.StatusConflict, "SLOT_UNAVAILABLE"},
		{booking.ErrOutsideBookingWindow, http.StatusUnprocessableEntity, "OUTSIDE_BOOKING_WINDOW"},
		{&calendar.AuthenticationError{Vendor: calendar.VendorGoogle, Reason: "revoked"}, http.StatusBadGateway, "CALENDAR_RECONNECT_REQUIRED"},
		{&calendar.APIError{Vendor: calendar.VendorGoogle, Status: 503, Temporary: true}, http.StatusServiceUnavailable, "CALENDAR_PROVIDER_UNAVAILABLE"},
	}
	for _, tt := range tests {
		f := newFixture(t, nil)
		f.bookings.bookErr = tt.err

		rec := f.do(http.MethodPost, "/api/tenants/t1/bookings", `{"start":"2026-03-02T08:00"}`)
		assert.Equal(t, tt.status, rec.Code)
		assert.Equal(t, tt.code, errorCode(t, rec))
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodDelete, "/api/tenants/t1/bookings/evt_1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "evt_1", f.bookings.canceled)

	rec = f.do(http.MethodDelete, "/api/tenants/t1/bookings/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "EVENT_NOT_FOUND", errorCode(t, rec))
}

func TestAPIToken(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.APIToken = "tok" })

	rec := f.do(http.MethodGet, "/api/tenants/t1/accounts", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/tenants/t1/accounts", "", "Authorization", "Bearer tok")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health and the vendor callback stay open.
	rec = f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/oauth/google/callback?state=s&code=c", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitPerTenant(t *testing.T) {
	limiter := middleware.NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1})
	f := newFixture(t, func(d *Deps) { d.RateLimiter = limiter })

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/tenants/t1/accounts", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/api/tenants/t1/accounts", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/tenants/t2/accounts", "").Code)
}
