package oauth

import (
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/dtorcivia/calbook/internal/calendar"
)

// classifyTokenError maps a token endpoint failure. A 4xx answer (typically
// invalid_grant) means the grant is dead and the account needs
// re-authorization; 5xx and transport failures are temporary.
func classifyTokenError(vendor calendar.Vendor, accountID string, err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return calendar.ClassifyTransport(vendor, err)
	}

	status := 0
	if rErr.Response != nil {
		status = rErr.Response.StatusCode
	}
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return &calendar.APIError{
			Vendor:    vendor,
			Status:    status,
			Code:      rErr.ErrorCode,
			Message:   rErr.ErrorDescription,
			Temporary: true,
			Err:       err,
		}
	}
	reason := rErr.ErrorCode
	if reason == "" {
		reason = "token endpoint rejected the grant"
	}
	return &calendar.AuthenticationError{Vendor: vendor, AccountID: accountID, Reason: reason, Err: err}
}
