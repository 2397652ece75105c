package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dtorcivia/calbook/internal/booking"
	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/response"
	"github.com/dtorcivia/calbook/internal/util"
)

// localDateTimeLayout is the wall clock format of booking requests.
const localDateTimeLayout = "2006-01-02T15:04"

const maxBodyBytes = 64 << 10

// accountView is the public shape of a provider account. Tokens never
// leave the server.
type accountView struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	Vendor          string     `json:"vendor"`
	Email           string     `json:"email,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`
	Active          bool       `json:"active"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func newAccountView(a *calendar.ProviderAccount) accountView {
	return accountView{
		ID:              a.ID,
		TenantID:        a.TenantID,
		Vendor:          a.Vendor.Lower(),
		Email:           a.AccountEmail,
		Timezone:        a.Timezone(),
		Active:          a.Active,
		HasRefreshToken: a.HasRefreshToken(),
		TokenExpiresAt:  a.TokenExpiresAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.WriteValidationError(w, "Invalid JSON body", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

// handleConnect starts the authorization flow and returns the consent URL.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	vendor, err := calendar.ParseVendor(r.PathValue("vendor"))
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	authURL, err := s.deps.Connector.Begin(r.Context(), r.PathValue("tenant"), vendor)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"authorization_url": authURL,
	})
}

// handleCallback finishes the authorization flow.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if vendorErr := q.Get("error"); vendorErr != "" {
		s.logger.Warn("Authorization denied by vendor",
			"vendor", r.PathValue("vendor"),
			"error", util.SanitizeString(vendorErr),
		)
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeAuthorizationDenied,
			"The calendar provider did not grant access")
		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		response.WriteValidationError(w, "state and code are required", nil)
		return
	}

	account, err := s.deps.Connector.Complete(r.Context(), state, code)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, newAccountView(account))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Accounts.ListByTenant(r.Context(), r.PathValue("tenant"))
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	views := make([]accountView, 0, len(list))
	for _, a := range list {
		views = append(views, newAccountView(a))
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"accounts": views})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Connector.Disconnect(r.Context(), r.PathValue("id")); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAvailabilityConfig(w http.ResponseWriter, r *http.Request) {
	account, err := s.deps.Accounts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	cfg, err := s.deps.Availability.Load(account)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutAvailabilityConfig(w http.ResponseWriter, r *http.Request) {
	account, err := s.deps.Accounts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	// Fields absent from the body keep their current values.
	cfg, err := s.deps.Availability.Load(account)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	if !decodeBody(w, r, cfg) {
		return
	}
	if err := s.deps.Availability.Save(r.Context(), account, cfg); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, cfg)
}

// handleSlots returns the open slots for ?date=YYYY-MM-DD. With
// ?conversation_id the offer is remembered for that conversation.
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	q := r.URL.Query()

	date, err := util.ParseDate(q.Get("date"), time.UTC)
	if err != nil {
		response.WriteValidationError(w, "date must be YYYY-MM-DD", nil)
		return
	}

	slots, err := s.deps.Bookings.Slots(r.Context(), tenantID, date)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	if conversationID := q.Get("conversation_id"); conversationID != "" && s.deps.Sessions != nil {
		err := s.deps.Sessions.Save(r.Context(), &booking.Session{
			ConversationID: conversationID,
			TenantID:       tenantID,
			ContactID:      q.Get("contact_id"),
			Date:           date.Format("2006-01-02"),
			OfferedSlots:   slots,
		})
		if err != nil {
			s.logger.Warn("Failed to save scheduling session", "conversation_id", conversationID, "error", err)
		}
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"date":  date.Format("2006-01-02"),
		"slots": slots,
	})
}

type bookRequest struct {
	ContactID      string `json:"contact_id"`
	Start          string `json:"start"`
	Description    string `json:"description"`
	ConversationID string `json:"conversation_id"`
}

// handleBook books the slot starting at the local wall clock time "start".
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")

	var req bookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := time.Parse(localDateTimeLayout, strings.TrimSpace(req.Start))
	if err != nil {
		response.WriteValidationError(w, "start must be YYYY-MM-DDTHH:MM", nil)
		return
	}

	var session *booking.Session
	if req.ConversationID != "" && s.deps.Sessions != nil {
		session, err = s.deps.Sessions.Load(r.Context(), req.ConversationID)
		if err != nil && !errors.Is(err, booking.ErrSessionNotFound) {
			s.logger.Warn("Failed to load scheduling session", "conversation_id", req.ConversationID, "error", err)
		}
		if session != nil && req.ContactID == "" {
			req.ContactID = session.ContactID
		}
	}

	confirmation, err := s.deps.Bookings.Book(r.Context(), booking.Request{
		TenantID:      tenantID,
		ContactID:     req.ContactID,
		LocalDateTime: start,
		Description:   req.Description,
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	if session != nil {
		if err := s.deps.Sessions.Clear(r.Context(), req.ConversationID); err != nil {
			s.logger.Warn("Failed to clear scheduling session", "conversation_id", req.ConversationID, "error", err)
		}
	}

	response.JSON(w, http.StatusCreated, confirmation)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bookings.Cancel(r.Context(), r.PathValue("tenant"), r.PathValue("eventID")); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
