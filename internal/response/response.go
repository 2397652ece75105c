// Package response provides standardized HTTP response helpers.
package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/dtorcivia/calbook/internal/accounts"
	"github.com/dtorcivia/calbook/internal/booking"
	"github.com/dtorcivia/calbook/internal/calendar"
)

// Error codes returned in the "code" field of error bodies.
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeValidationError      = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeAuthorizationExpired = "AUTHORIZATION_EXPIRED"
	ErrCodeAuthorizationDenied  = "AUTHORIZATION_DENIED"
	ErrCodeReconnectRequired    = "CALENDAR_RECONNECT_REQUIRED"
	ErrCodeProviderError        = "CALENDAR_PROVIDER_ERROR"
	ErrCodeProviderUnavailable  = "CALENDAR_PROVIDER_UNAVAILABLE"
	ErrCodeEventNotFound        = "EVENT_NOT_FOUND"
	ErrCodeNoActiveAccount      = "NO_ACTIVE_ACCOUNT"
	ErrCodeUnsupportedVendor    = "UNSUPPORTED_VENDOR"
	ErrCodeConfigurationError   = "CONFIGURATION_ERROR"
	ErrCodeSlotUnavailable      = "SLOT_UNAVAILABLE"
	ErrCodeOutsideBookingWindow = "OUTSIDE_BOOKING_WINDOW"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// APIError represents a structured API error response.
type APIError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"requestId,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps an APIError in the standard response format.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, "", nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message, requestID string, details map[string]interface{}) {
	JSON(w, status, ErrorResponse{
		Error: APIError{
			Code:      code,
			Message:   message,
			RequestID: requestID,
			Details:   details,
		},
	})
}

// WriteUnauthorized writes a 401 for a missing or wrong API token.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "API token missing or invalid")
}

// WriteRateLimited writes a 429 with a Retry-After header.
func WriteRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorWithDetails(w, http.StatusTooManyRequests, ErrCodeRateLimited,
		"Too many requests, please slow down",
		"", map[string]interface{}{
			"retry_after_seconds": retryAfter,
		})
}

// WriteValidationError writes a 400 validation error.
func WriteValidationError(w http.ResponseWriter, message string, details map[string]interface{}) {
	WriteErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationError, message, "", details)
}

// WriteInternalError writes a 500 internal error.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// Classify maps a domain error to an HTTP status, code and user-facing
// message. Unknown errors are internal.
func Classify(err error) (status int, code, message string) {
	var (
		stateErr  *calendar.InvalidStateError
		authErr   *calendar.AuthenticationError
		apiErr    *calendar.APIError
		configErr *calendar.ConfigurationError
	)
	switch {
	case errors.As(err, &stateErr):
		return http.StatusBadRequest, ErrCodeAuthorizationExpired, "Authorization expired, restart the connection flow"
	case errors.Is(err, booking.ErrSlotUnavailable):
		return http.StatusConflict, ErrCodeSlotUnavailable, "The requested time is not available"
	case errors.Is(err, booking.ErrOutsideBookingWindow):
		return http.StatusUnprocessableEntity, ErrCodeOutsideBookingWindow, "The requested time is outside the booking window"
	case errors.Is(err, accounts.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Account not found"
	case errors.As(err, &authErr):
		return http.StatusBadGateway, ErrCodeReconnectRequired, "Reconnect your calendar"
	case errors.Is(err, calendar.ErrEventNotFound):
		return http.StatusNotFound, ErrCodeEventNotFound, "Event not found"
	case errors.As(err, &apiErr):
		if apiErr.Temporary {
			return http.StatusServiceUnavailable, ErrCodeProviderUnavailable, "Calendar provider unavailable, try again later"
		}
		return http.StatusBadGateway, ErrCodeProviderError, "Calendar provider error"
	case errors.Is(err, calendar.ErrNoActiveAccount):
		return http.StatusNotFound, ErrCodeNoActiveAccount, "No calendar is connected"
	case errors.Is(err, calendar.ErrUnsupportedVendor):
		return http.StatusBadRequest, ErrCodeUnsupportedVendor, "Unsupported calendar vendor"
	case errors.As(err, &configErr):
		return http.StatusUnprocessableEntity, ErrCodeConfigurationError, configErr.Error()
	}
	return http.StatusInternalServerError, ErrCodeInternalError, "An unexpected error occurred"
}

// WriteDomainError writes err using Classify.
func WriteDomainError(w http.ResponseWriter, err error) {
	status, code, message := Classify(err)
	WriteError(w, status, code, message)
}
