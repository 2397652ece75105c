// Package oauth keeps provider credentials usable: it issues authorization
// URLs bound to single-use state tokens, exchanges authorization codes,
// and renews access tokens before they expire.
package oauth

import (
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/config"
)

// GoogleRevokeURL is Google's token revocation endpoint.
const GoogleRevokeURL = "https://oauth2.googleapis.com/revoke"

// VendorConfig is one vendor's OAuth2 client registration.
type VendorConfig struct {
	Vendor     calendar.Vendor
	OAuth2     *oauth2.Config
	AuthParams []oauth2.AuthCodeOption
	// RevokeURL is empty when the vendor offers no token revocation.
	RevokeURL string
}

// Configured reports whether client credentials are present.
func (v *VendorConfig) Configured() bool {
	return v != nil && v.OAuth2.ClientID != "" && v.OAuth2.ClientSecret != ""
}

// NewGoogleConfig builds the Google registration. Offline access and a
// forced consent prompt make Google issue a refresh token every time.
func NewGoogleConfig(cfg config.GoogleConfig) *VendorConfig {
	return &VendorConfig{
		Vendor: calendar.VendorGoogle,
		OAuth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
		AuthParams: []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce},
		RevokeURL:  GoogleRevokeURL,
	}
}

// NewOutlookConfig builds the Microsoft identity platform registration.
// The offline_access scope is what yields a refresh token.
func NewOutlookConfig(cfg config.OutlookConfig) *VendorConfig {
	return &VendorConfig{
		Vendor: calendar.VendorOutlook,
		OAuth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     microsoft.AzureADEndpoint(cfg.Tenant),
		},
		AuthParams: []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("prompt", "consent"),
			oauth2.SetAuthURLParam("response_mode", "query"),
		},
	}
}

// Registry maps each vendor to its registration.
type Registry map[calendar.Vendor]*VendorConfig

// NewRegistry indexes configs by vendor, skipping unconfigured ones.
func NewRegistry(configs ...*VendorConfig) Registry {
	r := make(Registry, len(configs))
	for _, c := range configs {
		if c.Configured() {
			r[c.Vendor] = c
		}
	}
	return r
}

// Lookup returns the registration for vendor or a ConfigurationError.
func (r Registry) Lookup(vendor calendar.Vendor) (*VendorConfig, error) {
	c, ok := r[vendor]
	if !ok {
		return nil, &calendar.ConfigurationError{
			Reason: fmt.Sprintf("oauth client for %s is not configured", vendor.Lower()),
			Err:    calendar.ErrUnsupportedVendor,
		}
	}
	return c, nil
}
