// Package server provides the HTTP surface of calbook: calendar connection,
// availability, booking, health and metrics.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dtorcivia/calbook/internal/availability"
	"github.com/dtorcivia/calbook/internal/booking"
	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/server/middleware"
	"github.com/dtorcivia/calbook/internal/util"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connector links and unlinks calendar accounts.
type Connector interface {
	Begin(ctx context.Context, tenantID string, vendor calendar.Vendor) (string, error)
	Complete(ctx context.Context, state, code string) (*calendar.ProviderAccount, error)
	Disconnect(ctx context.Context, accountID string) error
}

// Accounts reads stored provider accounts.
type Accounts interface {
	Get(ctx context.Context, id string) (*calendar.ProviderAccount, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*calendar.ProviderAccount, error)
}

// AvailabilityConfigs reads and writes an account's availability rules.
type AvailabilityConfigs interface {
	Load(account *calendar.ProviderAccount) (*availability.Config, error)
	Save(ctx context.Context, account *calendar.ProviderAccount, cfg *availability.Config) error
}

// Bookings is the booking use case.
type Bookings interface {
	Slots(ctx context.Context, tenantID string, date time.Time) ([]calendar.TimeSlot, error)
	Book(ctx context.Context, req booking.Request) (*booking.Confirmation, error)
	Cancel(ctx context.Context, tenantID, eventID string) error
}

// Sessions keeps per-conversation scheduling state.
type Sessions interface {
	Save(ctx context.Context, s *booking.Session) error
	Load(ctx context.Context, conversationID string) (*booking.Session, error)
	Clear(ctx context.Context, conversationID string) error
}

// Deps wires a Server. Sessions and Gatherer are optional.
type Deps struct {
	DB           Pinger
	Connector    Connector
	Accounts     Accounts
	Availability AvailabilityConfigs
	Bookings     Bookings
	Sessions     Sessions
	Gatherer     prometheus.Gatherer
	APIToken     string
	RateLimiter  *middleware.RateLimiter
	Logger       *util.Logger
}

// Server routes HTTP requests to the calbook components.
type Server struct {
	deps   Deps
	router *http.ServeMux
	logger *util.Logger
}

// New creates a Server with its routes registered.
func New(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = util.GetDefaultLogger()
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router

	// Recovery sits inside logging so a panic is logged as a 500.
	handler = middleware.Recovery(handler)
	handler = middleware.Logging(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.RequestID(handler)

	return handler
}

// StartBackgroundWorkers prunes idle rate limit buckets until ctx ends.
func (s *Server) StartBackgroundWorkers(ctx context.Context) {
	if s.deps.RateLimiter == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.deps.RateLimiter.Cleanup(time.Hour)
			}
		}
	}()
}

// api wraps an /api handler with bearer authentication and per-tenant
// rate limiting. Path values are already set when it runs.
func (s *Server) api(h http.HandlerFunc) http.Handler {
	limited := middleware.RateLimit(s.deps.RateLimiter, rateLimitKey)(h)
	return middleware.BearerToken(s.deps.APIToken)(limited)
}

func rateLimitKey(r *http.Request) string {
	if tenant := r.PathValue("tenant"); tenant != "" {
		return "tenant:" + tenant
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
