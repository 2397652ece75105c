package calendar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

var (
	// ErrNoRefreshToken is wrapped by an AuthenticationError when a stale
	// token cannot be renewed.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrUnsupportedVendor is wrapped when no client is registered for a vendor.
	ErrUnsupportedVendor = errors.New("unsupported vendor")
	// ErrNoActiveAccount is wrapped when a tenant has no active account.
	ErrNoActiveAccount = errors.New("no active calendar account")
	// ErrEventNotFound is wrapped by an APIError for 404 responses.
	ErrEventNotFound = errors.New("event not found")
)

// AuthenticationError means the vendor rejected the credentials, or they
// could not be renewed. Provider operations retry these after a refresh.
type AuthenticationError struct {
	Vendor    Vendor
	AccountID string
	Reason    string
	Err       error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("%s authentication failed", e.Vendor.Lower())
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// APIError is any other vendor failure. Temporary marks timeouts, transport
// failures, throttling and 5xx responses.
type APIError struct {
	Vendor    Vendor
	Status    int
	Code      string
	Message   string
	Temporary bool
	Err       error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s api error", e.Vendor.Lower())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// InvalidStateError rejects an authorization callback whose state is
// unknown, expired or already consumed.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid authorization state: " + e.Reason
}

// ConfigurationError reports missing or malformed setup: unknown vendor,
// no active account, bad availability configuration.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil && e.Reason == "" {
		return "configuration error: " + e.Err.Error()
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is or wraps an AuthenticationError.
func IsAuthError(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// IsTemporary reports whether err is a retryable APIError.
func IsTemporary(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Temporary
}

// IsNotFound reports whether err is a 404 from the vendor.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// ClassifyResponse maps a non-2xx vendor response into the error taxonomy.
// 401 and 403 become AuthenticationError; everything else an APIError with
// the vendor's code and message when the body carries them.
func ClassifyResponse(vendor Vendor, status int, body []byte) error {
	code, msg := parseErrorBody(body)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		reason := msg
		if reason == "" {
			reason = http.StatusText(status)
		}
		return &AuthenticationError{Vendor: vendor, Reason: reason}
	}
	apiErr := &APIError{
		Vendor:    vendor,
		Status:    status,
		Code:      code,
		Message:   msg,
		Temporary: status == http.StatusTooManyRequests || status >= 500,
	}
	if status == http.StatusNotFound {
		apiErr.Err = ErrEventNotFound
	}
	return apiErr
}

// ClassifyTransport maps a failure to reach the vendor. Timeouts and
// network errors become temporary APIErrors so they never trigger a token
// refresh.
func ClassifyTransport(vendor Vendor, err error) error {
	if err == nil {
		return nil
	}
	var authErr *AuthenticationError
	var apiErr *APIError
	if errors.As(err, &authErr) || errors.As(err, &apiErr) {
		return err
	}
	code := "transport"
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return &APIError{Vendor: vendor, Code: "canceled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		code = "timeout"
	}
	return &APIError{Vendor: vendor, Code: code, Temporary: true, Err: err}
}

// parseErrorBody understands both the Google envelope
// {"error":{"code":404,"message":"..","status":"NOT_FOUND"}} and the Graph
// envelope {"error":{"code":"ErrorItemNotFound","message":".."}}.
func parseErrorBody(body []byte) (code, message string) {
	if len(body) == 0 {
		return "", ""
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return "", ""
	}
	var detail struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err != nil {
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil {
			return s, ""
		}
		return "", ""
	}
	switch c := detail.Code.(type) {
	case string:
		code = c
	}
	if code == "" {
		code = detail.Status
	}
	if code == "" && len(detail.Errors) > 0 {
		code = detail.Errors[0].Reason
	}
	return code, detail.Message
}
