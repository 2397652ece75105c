// Package accounts persists provider accounts in SQLite with tokens sealed
// by the crypto package.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/crypto"
	"github.com/dtorcivia/calbook/internal/database"
	"github.com/dtorcivia/calbook/internal/util"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrVersionConflict is returned when a token update lost a race with
	// another writer.
	ErrVersionConflict = errors.New("account was modified concurrently")
)

// Store is the SQLite-backed account repository.
type Store struct {
	db    *database.DB
	enc   *crypto.Encryptor
	clock util.Clock
}

// NewStore returns a Store. A nil clock uses the wall clock.
func NewStore(db *database.DB, enc *crypto.Encryptor, clock util.Clock) *Store {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Store{db: db, enc: enc, clock: clock}
}

const selectColumns = `
	SELECT id, tenant_id, vendor, account_email, access_token_enc, refresh_token_enc,
	       token_expires_at, configuration, active, version, created_at, updated_at
	FROM provider_accounts`

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (*calendar.ProviderAccount, error) {
	var (
		a                 calendar.ProviderAccount
		vendor            string
		accessEnc         []byte
		refreshEnc        []byte
		expiresAt         sql.NullString
		configJSON        string
		active            int
		createdAt, update string
	)
	if err := row.Scan(&a.ID, &a.TenantID, &vendor, &a.AccountEmail, &accessEnc, &refreshEnc,
		&expiresAt, &configJSON, &active, &a.Version, &createdAt, &update); err != nil {
		return nil, err
	}
	a.Vendor = calendar.Vendor(vendor)
	a.Active = active == 1

	var err error
	if a.AccessToken, err = s.enc.DecryptOptional(accessEnc); err != nil {
		return nil, fmt.Errorf("decrypt access token for %s: %w", a.ID, err)
	}
	if a.RefreshToken, err = s.enc.DecryptOptional(refreshEnc); err != nil {
		return nil, fmt.Errorf("decrypt refresh token for %s: %w", a.ID, err)
	}

	if expiresAt.Valid && expiresAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse token expiry for %s: %w", a.ID, err)
		}
		a.TokenExpiresAt = &t
	}

	a.Configuration = map[string]any{}
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &a.Configuration); err != nil {
			return nil, fmt.Errorf("parse configuration for %s: %w", a.ID, err)
		}
	}

	a.CreatedAt, _ = util.ParseSQLiteTimestamp(createdAt)
	a.UpdatedAt, _ = util.ParseSQLiteTimestamp(update)
	return &a, nil
}

func formatExpiry(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// sealTokens returns the encrypted tokens as driver arguments, with absent
// tokens bound as NULL.
func (s *Store) sealTokens(a *calendar.ProviderAccount) (access, refresh any, err error) {
	seal := func(plain, name string) (any, error) {
		b, err := s.enc.EncryptOptional(plain)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s token: %w", name, err)
		}
		if b == nil {
			return nil, nil
		}
		return b, nil
	}
	if access, err = seal(a.AccessToken, "access"); err != nil {
		return nil, nil, err
	}
	if refresh, err = seal(a.RefreshToken, "refresh"); err != nil {
		return nil, nil, err
	}
	return access, refresh, nil
}

// Get loads an account by id, active or not.
func (s *Store) Get(ctx context.Context, id string) (*calendar.ProviderAccount, error) {
	a, err := s.scan(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

// Active returns the tenant's active account for vendor.
func (s *Store) Active(ctx context.Context, tenantID string, vendor calendar.Vendor) (*calendar.ProviderAccount, error) {
	a, err := s.scan(s.db.QueryRowContext(ctx, selectColumns+` WHERE tenant_id = ? AND vendor = ? AND active = 1`, tenantID, string(vendor)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active %s account for %s: %w", vendor, tenantID, err)
	}
	return a, nil
}

// ActiveForTenant returns the tenant's first active account in
// calendar.Vendors order, or a ConfigurationError when none is active.
func (s *Store) ActiveForTenant(ctx context.Context, tenantID string) (*calendar.ProviderAccount, error) {
	for _, v := range calendar.Vendors {
		a, err := s.Active(ctx, tenantID, v)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return a, err
	}
	return nil, &calendar.ConfigurationError{
		Reason: fmt.Sprintf("tenant %s has no active calendar account", tenantID),
		Err:    calendar.ErrNoActiveAccount,
	}
}

// ListByTenant returns every account of the tenant, newest first.
func (s *Store) ListByTenant(ctx context.Context, tenantID string) ([]*calendar.ProviderAccount, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE tenant_id = ? ORDER BY created_at DESC, rowid DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list accounts for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var out []*calendar.ProviderAccount
	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Connect stores a as the tenant's active account for its vendor,
// deactivating any previous one in the same transaction. ID, version and
// timestamps are assigned here.
func (s *Store) Connect(ctx context.Context, a *calendar.ProviderAccount) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Configuration == nil {
		a.Configuration = map[string]any{}
	}
	access, refresh, err := s.sealTokens(a)
	if err != nil {
		return err
	}
	configJSON, err := json.Marshal(a.Configuration)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	stamp := util.SQLiteTimestamp(now)

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE provider_accounts SET active = 0, version = version + 1, updated_at = ?
			WHERE tenant_id = ? AND vendor = ? AND active = 1
		`, stamp, a.TenantID, string(a.Vendor)); err != nil {
			return fmt.Errorf("deactivate previous account: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO provider_accounts
				(id, tenant_id, vendor, account_email, access_token_enc, refresh_token_enc,
				 token_expires_at, configuration, active, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?)
		`, a.ID, a.TenantID, string(a.Vendor), a.AccountEmail, access, refresh,
			formatExpiry(a.TokenExpiresAt), string(configJSON), stamp, stamp)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.Active = true
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// SaveTokens writes the account's tokens if its Version still matches the
// stored row, then bumps a.Version. A mismatch returns ErrVersionConflict.
func (s *Store) SaveTokens(ctx context.Context, a *calendar.ProviderAccount) error {
	access, refresh, err := s.sealTokens(a)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx, `
		UPDATE provider_accounts
		SET access_token_enc = ?, refresh_token_enc = ?, token_expires_at = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, access, refresh, formatExpiry(a.TokenExpiresAt), util.SQLiteTimestamp(now), a.ID, a.Version)
	if err != nil {
		return fmt.Errorf("save tokens for %s: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, a.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	a.Version++
	a.UpdatedAt = now
	return nil
}

// UpdateConfiguration replaces the account's configuration map.
func (s *Store) UpdateConfiguration(ctx context.Context, id string, cfg map[string]any) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE provider_accounts SET configuration = ?, version = version + 1, updated_at = ?
		WHERE id = ?
	`, string(configJSON), util.SQLiteTimestamp(s.clock.Now()), id)
	if err != nil {
		return fmt.Errorf("update configuration for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate marks the account inactive. Rows are never deleted.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE provider_accounts SET active = 0, version = version + 1, updated_at = ?
		WHERE id = ? AND active = 1
	`, util.SQLiteTimestamp(s.clock.Now()), id)
	if err != nil {
		return fmt.Errorf("deactivate account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
