package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/dtorcivia/calbook/internal/calendar"
)

// Tokens is the credential set returned by a code exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Flow issues authorization URLs and exchanges codes.
type Flow struct {
	vendors    Registry
	states     *StateStore
	httpClient *http.Client
}

// NewFlow creates a Flow. httpClient carries the token endpoint timeout.
func NewFlow(vendors Registry, states *StateStore, httpClient *http.Client) *Flow {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Flow{vendors: vendors, states: states, httpClient: httpClient}
}

// BeginAuthorization binds a fresh state token to (tenant, vendor) and
// returns the vendor consent URL carrying it.
func (f *Flow) BeginAuthorization(ctx context.Context, tenantID string, vendor calendar.Vendor) (authURL, state string, err error) {
	if tenantID == "" {
		return "", "", &calendar.ConfigurationError{Reason: "tenant id is required"}
	}
	vc, err := f.vendors.Lookup(vendor)
	if err != nil {
		return "", "", err
	}

	state, err = f.states.Issue(ctx, PendingAuthorization{TenantID: tenantID, Vendor: vendor})
	if err != nil {
		return "", "", err
	}
	return vc.OAuth2.AuthCodeURL(state, vc.AuthParams...), state, nil
}

// CompleteAuthorization consumes state. A second call with the same state
// fails with InvalidStateError.
func (f *Flow) CompleteAuthorization(ctx context.Context, state string) (*PendingAuthorization, error) {
	return f.states.Consume(ctx, state)
}

// ExchangeCode trades an authorization code for tokens at the vendor token
// endpoint using the registered redirect URI.
func (f *Flow) ExchangeCode(ctx context.Context, code string, vendor calendar.Vendor) (*Tokens, error) {
	if code == "" {
		return nil, &calendar.AuthenticationError{Vendor: vendor, Reason: "missing authorization code"}
	}
	vc, err := f.vendors.Lookup(vendor)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	tok, err := vc.OAuth2.Exchange(ctx, code)
	if err != nil {
		return nil, classifyTokenError(vendor, "", err)
	}
	if tok.AccessToken == "" {
		return nil, &calendar.AuthenticationError{Vendor: vendor, Reason: "token response carried no access token"}
	}

	out := &Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		out.ExpiresAt = &exp
	}
	return out, nil
}

// revoke asks the vendor to invalidate token. Vendors without a revocation
// endpoint are skipped.
func (f *Flow) revoke(ctx context.Context, vendor calendar.Vendor, token string) error {
	vc, err := f.vendors.Lookup(vendor)
	if err != nil || vc.RevokeURL == "" || token == "" {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vc.RevokeURL, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set("token", token)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return calendar.ClassifyTransport(vendor, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke %s token: status %d", vendor.Lower(), resp.StatusCode)
	}
	return nil
}
