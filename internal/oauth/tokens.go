package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/dtorcivia/calbook/internal/accounts"
	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/metrics"
	"github.com/dtorcivia/calbook/internal/util"
)

// DefaultRefreshSkew is how close to expiry a token is renewed.
const DefaultRefreshSkew = 5 * time.Minute

// AccountStore is the persistence the token manager needs.
type AccountStore interface {
	Get(ctx context.Context, id string) (*calendar.ProviderAccount, error)
	SaveTokens(ctx context.Context, account *calendar.ProviderAccount) error
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Store       AccountStore
	Vendors     Registry
	Clock       util.Clock
	RefreshSkew time.Duration
	// HTTPClient is used for token endpoint calls; it should carry a timeout.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *util.Logger
}

// Manager implements calendar.TokenManager.
type Manager struct {
	store      AccountStore
	vendors    Registry
	clock      util.Clock
	skew       time.Duration
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *util.Logger

	locks sync.Map // account id -> *sync.Mutex
}

// NewManager creates a token manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		store:      cfg.Store,
		vendors:    cfg.Vendors,
		clock:      cfg.Clock,
		skew:       cfg.RefreshSkew,
		httpClient: cfg.HTTPClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
	if m.clock == nil {
		m.clock = util.SystemClock{}
	}
	if m.skew <= 0 {
		m.skew = DefaultRefreshSkew
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if m.logger == nil {
		m.logger = util.GetDefaultLogger()
	}
	return m
}

// EnsureValid returns account unchanged when its token is usable and a
// refreshed, persisted copy otherwise.
func (m *Manager) EnsureValid(ctx context.Context, account *calendar.ProviderAccount) (*calendar.ProviderAccount, error) {
	if !account.TokenStale(m.clock.Now(), m.skew) {
		return account, nil
	}
	return m.refresh(ctx, account, false)
}

// Refresh renews the token even if it looks valid, for use after the
// vendor rejected it.
func (m *Manager) Refresh(ctx context.Context, account *calendar.ProviderAccount) (*calendar.ProviderAccount, error) {
	return m.refresh(ctx, account, true)
}

func (m *Manager) lock(id string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// refresh runs the critical section for one account. The stored row is
// re-read under the lock so a caller holding an outdated copy reuses a
// token another caller already renewed instead of spending the refresh
// token again.
func (m *Manager) refresh(ctx context.Context, account *calendar.ProviderAccount, force bool) (*calendar.ProviderAccount, error) {
	mu := m.lock(account.ID)
	mu.Lock()
	defer mu.Unlock()

	stored, err := m.store.Get(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("reload account %s: %w", account.ID, err)
	}

	now := m.clock.Now()
	if !stored.TokenStale(now, m.skew) && (!force || stored.AccessToken != account.AccessToken) {
		return stored, nil
	}

	updated, err := m.renew(ctx, stored)
	m.metrics.TokenRefresh(stored.Vendor, err)
	if err != nil {
		m.logger.Warn("token refresh failed",
			"account_id", stored.ID,
			"vendor", stored.Vendor.Lower(),
			"error", err,
		)
		return nil, err
	}

	updated, ours, err := m.persist(ctx, stored, updated)
	if err != nil {
		return nil, err
	}
	if !ours {
		m.logger.Info("token refreshed concurrently, using stored token", "account_id", stored.ID)
		return updated, nil
	}

	m.logger.Info("access token refreshed",
		"account_id", updated.ID,
		"vendor", updated.Vendor.Lower(),
		"rotated_refresh_token", updated.RefreshToken != stored.RefreshToken,
	)
	return updated, nil
}

// maxSaveAttempts bounds SaveTokens retries when unrelated writes
// (configuration, activation) keep bumping the row version.
const maxSaveAttempts = 3

// persist saves updated. On a version conflict the row is re-read: if it
// still holds the tokens the refresh started from, the conflict came from
// an unrelated write and the save is retried on top of it; otherwise
// another process renewed first and its row is returned with ours false.
func (m *Manager) persist(ctx context.Context, stored, updated *calendar.ProviderAccount) (*calendar.ProviderAccount, bool, error) {
	for attempt := 1; ; attempt++ {
		err := m.store.SaveTokens(ctx, updated)
		if err == nil {
			return updated, true, nil
		}
		if !errors.Is(err, accounts.ErrVersionConflict) || attempt >= maxSaveAttempts {
			return nil, false, fmt.Errorf("persist refreshed token for %s: %w", stored.ID, err)
		}

		latest, err := m.store.Get(ctx, stored.ID)
		if err != nil {
			return nil, false, fmt.Errorf("reload account %s: %w", stored.ID, err)
		}
		if latest.AccessToken != stored.AccessToken || latest.RefreshToken != stored.RefreshToken {
			return latest, false, nil
		}

		rebased := latest.Clone()
		rebased.AccessToken = updated.AccessToken
		rebased.RefreshToken = updated.RefreshToken
		rebased.TokenExpiresAt = updated.TokenExpiresAt
		updated = rebased
	}
}

// renew calls the vendor token endpoint with grant_type=refresh_token.
func (m *Manager) renew(ctx context.Context, stored *calendar.ProviderAccount) (*calendar.ProviderAccount, error) {
	if !stored.HasRefreshToken() {
		return nil, &calendar.AuthenticationError{
			Vendor:    stored.Vendor,
			AccountID: stored.ID,
			Reason:    "access token expired",
			Err:       calendar.ErrNoRefreshToken,
		}
	}

	vc, err := m.vendors.Lookup(stored.Vendor)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	expired := &oauth2.Token{
		RefreshToken: stored.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}
	tok, err := vc.OAuth2.TokenSource(ctx, expired).Token()
	if err != nil {
		return nil, classifyTokenError(stored.Vendor, stored.ID, err)
	}

	updated := stored.Clone()
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	updated.TokenExpiresAt = nil
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		updated.TokenExpiresAt = &exp
	}
	return updated, nil
}
