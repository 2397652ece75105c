package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtorcivia/calbook/internal/response"
)

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	// Health checks (no auth required)
	s.router.HandleFunc("GET /healthz", s.handleLiveness)
	s.router.HandleFunc("GET /health", s.handleHealth)

	if s.deps.Gatherer != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Vendor redirect target; the state token authenticates it.
	s.router.HandleFunc("GET /oauth/{vendor}/callback", s.handleCallback)

	s.router.Handle("POST /api/tenants/{tenant}/connect/{vendor}", s.api(s.handleConnect))
	s.router.Handle("GET /api/tenants/{tenant}/accounts", s.api(s.handleListAccounts))
	s.router.Handle("DELETE /api/accounts/{id}", s.api(s.handleDisconnect))
	s.router.Handle("GET /api/accounts/{id}/availability", s.api(s.handleGetAvailabilityConfig))
	s.router.Handle("PUT /api/accounts/{id}/availability", s.api(s.handlePutAvailabilityConfig))
	s.router.Handle("GET /api/tenants/{tenant}/availability", s.api(s.handleSlots))
	s.router.Handle("POST /api/tenants/{tenant}/bookings", s.api(s.handleBook))
	s.router.Handle("DELETE /api/tenants/{tenant}/bookings/{eventID}", s.api(s.handleCancel))
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth reports database connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			s.logger.Error("Health check failed", "error", err)
			response.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}
