package calendar

import (
	"context"
)

// Client is the uniform operation set each vendor implements. Every
// operation runs inside WithReauth, so callers never see a stale-token
// failure that a single refresh would have fixed.
type Client interface {
	Vendor() Vendor
	CreateEvent(ctx context.Context, account *ProviderAccount, event *CalendarEvent) (*CalendarEventResponse, error)
	UpdateEvent(ctx context.Context, account *ProviderAccount, eventID string, event *CalendarEvent) (*CalendarEventResponse, error)
	DeleteEvent(ctx context.Context, account *ProviderAccount, eventID string) error
	GetEvent(ctx context.Context, account *ProviderAccount, eventID string) (*CalendarEventResponse, error)
	ListEvents(ctx context.Context, account *ProviderAccount, window TimeWindow) ([]CalendarEventResponse, error)
	GetFreeBusy(ctx context.Context, account *ProviderAccount, query FreeBusyQuery) (*FreeBusyResponse, error)
}

// ProfileFetcher reads the identity behind a freshly issued access token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*AccountProfile, error)
}

// TokenManager guarantees a usable access token. EnsureValid renews only
// when the token is stale; Refresh renews unconditionally. Both persist
// the renewed token before returning it.
type TokenManager interface {
	EnsureValid(ctx context.Context, account *ProviderAccount) (*ProviderAccount, error)
	Refresh(ctx context.Context, account *ProviderAccount) (*ProviderAccount, error)
}

// ReauthObserver is notified each time an operation is retried after a
// forced refresh.
type ReauthObserver interface {
	ReauthRetry(vendor Vendor)
}
