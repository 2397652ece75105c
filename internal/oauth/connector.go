package oauth

import (
	"context"
	"fmt"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/metrics"
	"github.com/dtorcivia/calbook/internal/util"
)

// AccountWriter is the persistence the connector needs.
type AccountWriter interface {
	Get(ctx context.Context, id string) (*calendar.ProviderAccount, error)
	Connect(ctx context.Context, account *calendar.ProviderAccount) error
	Deactivate(ctx context.Context, id string) error
}

// ConnectorConfig wires a Connector.
type ConnectorConfig struct {
	Flow            *Flow
	Accounts        AccountWriter
	Profiles        map[calendar.Vendor]calendar.ProfileFetcher
	DefaultTimezone string
	// CalendarIDs seeds the calendarId configuration key per vendor.
	CalendarIDs map[calendar.Vendor]string
	Metrics     *metrics.Metrics
	Logger      *util.Logger
}

// Connector turns a finished authorization callback into a stored, active
// provider account, and tears accounts down again.
type Connector struct {
	flow            *Flow
	accounts        AccountWriter
	profiles        map[calendar.Vendor]calendar.ProfileFetcher
	defaultTimezone string
	calendarIDs     map[calendar.Vendor]string
	metrics         *metrics.Metrics
	logger          *util.Logger
}

// NewConnector creates a Connector.
func NewConnector(cfg ConnectorConfig) *Connector {
	c := &Connector{
		flow:            cfg.Flow,
		accounts:        cfg.Accounts,
		profiles:        cfg.Profiles,
		defaultTimezone: cfg.DefaultTimezone,
		calendarIDs:     cfg.CalendarIDs,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
	if c.defaultTimezone == "" {
		c.defaultTimezone = util.DefaultTimezone
	}
	if c.logger == nil {
		c.logger = util.GetDefaultLogger()
	}
	return c
}

// Begin returns the consent URL for tenant and vendor.
func (c *Connector) Begin(ctx context.Context, tenantID string, vendor calendar.Vendor) (string, error) {
	authURL, _, err := c.flow.BeginAuthorization(ctx, tenantID, vendor)
	return authURL, err
}

// Complete handles the redirect callback. The state is consumed before the
// code is exchanged, so a failed exchange still burns it.
func (c *Connector) Complete(ctx context.Context, state, code string) (*calendar.ProviderAccount, error) {
	pending, err := c.flow.CompleteAuthorization(ctx, state)
	if err != nil {
		c.metrics.AuthorizationFlow("unknown", err)
		return nil, err
	}

	account, err := c.connect(ctx, pending, code)
	c.metrics.AuthorizationFlow(pending.Vendor, err)
	if err != nil {
		c.logger.Warn("Authorization callback failed",
			"tenant_id", pending.TenantID,
			"vendor", pending.Vendor.Lower(),
			"error", err,
		)
		return nil, err
	}

	c.logger.Info("Calendar account connected",
		"tenant_id", account.TenantID,
		"vendor", account.Vendor.Lower(),
		"account_id", account.ID,
		"has_refresh_token", account.HasRefreshToken(),
	)
	return account, nil
}

func (c *Connector) connect(ctx context.Context, pending *PendingAuthorization, code string) (*calendar.ProviderAccount, error) {
	tokens, err := c.flow.ExchangeCode(ctx, code, pending.Vendor)
	if err != nil {
		return nil, err
	}

	timezone := c.defaultTimezone
	var email string
	if fetcher, ok := c.profiles[pending.Vendor]; ok {
		profile, err := fetcher.FetchProfile(ctx, tokens.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("fetch account profile: %w", err)
		}
		email = profile.Email
		if _, err := util.LoadLocation(profile.TimeZone); profile.TimeZone != "" && err == nil {
			timezone = profile.TimeZone
		}
	}

	cfg := map[string]any{calendar.ConfigTimezone: timezone}
	if id := c.calendarIDs[pending.Vendor]; id != "" {
		cfg[calendar.ConfigCalendarID] = id
	}

	account := &calendar.ProviderAccount{
		TenantID:       pending.TenantID,
		Vendor:         pending.Vendor,
		AccountEmail:   email,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.ExpiresAt,
		Configuration:  cfg,
	}
	if err := c.accounts.Connect(ctx, account); err != nil {
		return nil, fmt.Errorf("store account: %w", err)
	}
	return account, nil
}

// Disconnect revokes the account's grant where the vendor supports it and
// deactivates the account. Revocation is best effort.
func (c *Connector) Disconnect(ctx context.Context, accountID string) error {
	account, err := c.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}

	token := account.RefreshToken
	if token == "" {
		token = account.AccessToken
	}
	if err := c.flow.revoke(ctx, account.Vendor, token); err != nil {
		c.logger.Warn("Token revocation failed", "account_id", accountID, "error", err)
	}

	if err := c.accounts.Deactivate(ctx, accountID); err != nil {
		return err
	}
	c.logger.Info("Calendar account disconnected", "account_id", accountID, "vendor", account.Vendor.Lower())
	return nil
}
