package outlook

import (
	"context"
	"net/http"

	"github.com/dtorcivia/calbook/internal/calendar"
)

// Scopes are the delegated Graph permissions the authorization flow asks for.
func Scopes() []string {
	return []string{
		"offline_access",
		"openid",
		"email",
		"User.Read",
		"Calendars.ReadWrite",
		"MailboxSettings.Read",
	}
}

// FetchProfile reads the signed-in user's address and mailbox timezone.
// The timezone may be a Windows zone name; callers validate it.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*calendar.AccountProfile, error) {
	var me struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := c.do(ctx, accessToken, request{method: http.MethodGet, path: "/me?$select=mail,userPrincipalName"}, &me); err != nil {
		return nil, err
	}

	profile := &calendar.AccountProfile{Email: me.Mail}
	if profile.Email == "" {
		profile.Email = me.UserPrincipalName
	}

	var settings struct {
		TimeZone string `json:"timeZone"`
	}
	if err := c.do(ctx, accessToken, request{method: http.MethodGet, path: "/me/mailboxSettings"}, &settings); err == nil {
		profile.TimeZone = settings.TimeZone
	}
	return profile, nil
}

var _ calendar.ProfileFetcher = (*Client)(nil)
