package google

import (
	"context"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/dtorcivia/calbook/internal/calendar"
)

// FetchProfile reads the account email from the userinfo API and the
// calendar's timezone setting. A missing timezone is not an error.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*calendar.AccountProfile, error) {
	start := time.Now()
	profile, err := c.fetchProfile(ctx, accessToken)
	c.metrics.ObserveRequest(calendar.VendorGoogle, "fetch_profile", start, err)
	return profile, err
}

func (c *Client) fetchProfile(ctx context.Context, accessToken string) (*calendar.AccountProfile, error) {
	opts := []option.ClientOption{option.WithHTTPClient(c.httpClient(accessToken))}
	if c.userinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(c.userinfoEndpoint))
	}
	users, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, &calendar.ConfigurationError{Reason: "create userinfo service", Err: err}
	}

	info, err := users.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	profile := &calendar.AccountProfile{Email: info.Email}

	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return profile, nil
	}
	if setting, err := svc.Settings.Get("timezone").Context(ctx).Do(); err == nil {
		profile.TimeZone = setting.Value
	}
	return profile, nil
}

var _ calendar.Client = (*Client)(nil)
var _ calendar.ProfileFetcher = (*Client)(nil)

// calendarScopes are the scopes Client needs.
var calendarScopes = []string{gcal.CalendarScope, oauth2api.UserinfoEmailScope}

// Scopes returns the OAuth2 scopes the client requires.
func Scopes() []string {
	return append([]string(nil), calendarScopes...)
}
