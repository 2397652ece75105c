// Package metrics exposes Prometheus counters for provider calls, token
// lifecycle events and availability degradation. All methods are safe on a
// nil *Metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dtorcivia/calbook/internal/calendar"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	providerRequests   *prometheus.CounterVec
	providerDuration   *prometheus.HistogramVec
	tokenRefreshes     *prometheus.CounterVec
	reauthRetries      *prometheus.CounterVec
	busyFetchFailures  *prometheus.CounterVec
	authorizationFlows *prometheus.CounterVec
	bookings           *prometheus.CounterVec
	storePurged        prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		providerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calbook_provider_requests_total",
				Help: "Calendar provider API calls by vendor, operation and outcome",
			},
			[]string{"vendor", "operation", "outcome"},
		),
		providerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calbook_provider_request_duration_seconds",
				Help:    "Calendar provider API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"vendor", "operation"},
		),
		tokenRefreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calbook_token_refreshes_total",
				Help: "Access token refreshes by vendor and outcome",
			},
			[]string{"vendor", "outcome"},
		),
		reauthRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calbook_reauth_retries_total",
				Help: "Provider operations retried after a forced token refresh",
			},
			[]string{"vendor"},
		),
		busyFetchFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calbook_busy_fetch_failures_total",
				Help: "Busy interval fetches that failed while computing availability",
			},
			[]string{"vendor"},
		),
		authorizationFlows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calbook_authorization_flows_total",
				Help: "Completed authorization callbacks by vendor and outcome",
			},
			[]string{"vendor", "outcome"},
		),
		bookings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calbook_bookings_total",
				Help: "Booking attempts by vendor and outcome",
			},
			[]string{"vendor", "outcome"},
		),
		storePurged: f.NewCounter(
			prometheus.CounterOpts{
				Name: "calbook_store_purged_total",
				Help: "Expired short-lived entries removed by the cleanup worker",
			},
		),
	}
}

// Outcome buckets err for a metric label.
func Outcome(err error) string {
	var invalidState *calendar.InvalidStateError
	var cfgErr *calendar.ConfigurationError
	switch {
	case err == nil:
		return "ok"
	case calendar.IsAuthError(err):
		return "auth_error"
	case calendar.IsTemporary(err):
		return "temporary"
	case errors.As(err, &invalidState):
		return "invalid_state"
	case errors.As(err, &cfgErr):
		return "configuration"
	default:
		var apiErr *calendar.APIError
		if errors.As(err, &apiErr) {
			return "api_error"
		}
		return "error"
	}
}

// ObserveRequest records one provider call that started at start.
func (m *Metrics) ObserveRequest(vendor calendar.Vendor, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(vendor.Lower(), operation, Outcome(err)).Inc()
	m.providerDuration.WithLabelValues(vendor.Lower(), operation).Observe(time.Since(start).Seconds())
}

// TokenRefresh records a refresh attempt.
func (m *Metrics) TokenRefresh(vendor calendar.Vendor, err error) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(vendor.Lower(), Outcome(err)).Inc()
}

// ReauthRetry satisfies calendar.ReauthObserver.
func (m *Metrics) ReauthRetry(vendor calendar.Vendor) {
	if m == nil {
		return
	}
	m.reauthRetries.WithLabelValues(vendor.Lower()).Inc()
}

// BusyFetchFailure records an availability computation that could not read
// busy intervals.
func (m *Metrics) BusyFetchFailure(vendor calendar.Vendor) {
	if m == nil {
		return
	}
	m.busyFetchFailures.WithLabelValues(vendor.Lower()).Inc()
}

// AuthorizationFlow records a completed or rejected callback.
func (m *Metrics) AuthorizationFlow(vendor calendar.Vendor, err error) {
	if m == nil {
		return
	}
	m.authorizationFlows.WithLabelValues(vendor.Lower(), Outcome(err)).Inc()
}

// Booking records a booking attempt.
func (m *Metrics) Booking(vendor calendar.Vendor, err error) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(vendor.Lower(), Outcome(err)).Inc()
}

// StorePurged adds n removed entries.
func (m *Metrics) StorePurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.storePurged.Add(float64(n))
}
