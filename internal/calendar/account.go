package calendar

import (
	"time"
)

// Configuration map keys.
const (
	ConfigTimezone     = "timezone"
	ConfigCalendarID   = "calendarId"
	ConfigAvailability = "availability"
)

// ProviderAccount is one tenant's OAuth2 credential set and configuration
// for a single vendor. At most one account per (TenantID, Vendor) is active.
type ProviderAccount struct {
	ID             string
	TenantID       string
	Vendor         Vendor
	AccountEmail   string
	AccessToken    string
	RefreshToken   string     // empty when the vendor issued none
	TokenExpiresAt *time.Time // nil means unknown, trusted as valid
	Configuration  map[string]any
	Active         bool
	Version        int64 // incremented by the store on every save
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Timezone returns the configured IANA zone or "".
func (a *ProviderAccount) Timezone() string {
	s, _ := a.Configuration[ConfigTimezone].(string)
	return s
}

// CalendarID returns the configured calendar id, or fallback when unset.
func (a *ProviderAccount) CalendarID(fallback string) string {
	if s, ok := a.Configuration[ConfigCalendarID].(string); ok && s != "" {
		return s
	}
	return fallback
}

// HasRefreshToken reports whether the account can be renewed.
func (a *ProviderAccount) HasRefreshToken() bool {
	return a.RefreshToken != ""
}

// TokenStale reports whether the access token must be renewed before use:
// missing, or expiring within skew of now. An unknown expiry is trusted.
func (a *ProviderAccount) TokenStale(now time.Time, skew time.Duration) bool {
	if a.AccessToken == "" {
		return true
	}
	if a.TokenExpiresAt == nil {
		return false
	}
	return !a.TokenExpiresAt.After(now.Add(skew))
}

// Clone returns a deep copy safe to mutate.
func (a *ProviderAccount) Clone() *ProviderAccount {
	if a == nil {
		return nil
	}
	c := *a
	if a.TokenExpiresAt != nil {
		t := *a.TokenExpiresAt
		c.TokenExpiresAt = &t
	}
	c.Configuration = cloneMap(a.Configuration)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
