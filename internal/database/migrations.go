package database

import (
	"fmt"
)

// migrate runs all database migrations.
func (db *DB) migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, m := range getAllMigrations() {
		if m.version > currentVersion {
			if err := db.runMigration(m); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
		}
	}

	return nil
}

type migration struct {
	version int
	sql     string
}

func (db *DB) runMigration(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

func getAllMigrations() []migration {
	return []migration{
		{version: 1, sql: migration001ProviderAccounts},
		{version: 2, sql: migration002KeyedStore},
	}
}

const migration001ProviderAccounts = `
-- One calendar credential set per (tenant, vendor). Tokens are AES-256-GCM
-- sealed. Rows are soft-deactivated, never purged.
CREATE TABLE IF NOT EXISTS provider_accounts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    vendor TEXT NOT NULL CHECK (vendor IN ('GOOGLE', 'OUTLOOK')),
    account_email TEXT NOT NULL DEFAULT '',
    access_token_enc BLOB,
    refresh_token_enc BLOB,
    token_expires_at TEXT,                  -- NULL = unknown, treated as valid
    configuration TEXT NOT NULL DEFAULT '{}',
    active INTEGER NOT NULL DEFAULT 1,
    version INTEGER NOT NULL DEFAULT 1,     -- bumped on every save
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_provider_accounts_active
    ON provider_accounts(tenant_id, vendor) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_provider_accounts_tenant
    ON provider_accounts(tenant_id);
`

const migration002KeyedStore = `
-- Ephemeral keyed entries (OAuth state, booking sessions).
CREATE TABLE IF NOT EXISTS kv_entries (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    expires_at INTEGER NOT NULL             -- unix milliseconds
);

CREATE INDEX IF NOT EXISTS idx_kv_entries_expires ON kv_entries(expires_at);
`
