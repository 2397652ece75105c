package availability

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dtorcivia/calbook/internal/calendar"
)

// ConfigWriter persists an account's configuration map.
type ConfigWriter interface {
	UpdateConfiguration(ctx context.Context, accountID string, cfg map[string]any) error
}

// ConfigSource reads and writes the availability blob of an account.
type ConfigSource struct {
	accounts ConfigWriter
}

// NewConfigSource creates a ConfigSource backed by accounts.
func NewConfigSource(accounts ConfigWriter) *ConfigSource {
	return &ConfigSource{accounts: accounts}
}

// Load returns the account's rules or the default set.
func (s *ConfigSource) Load(account *calendar.ProviderAccount) (*Config, error) {
	return FromAccount(account)
}

// Save validates cfg, stores it under the availability key and updates
// account.Configuration and Version in place. Other configuration keys
// are kept.
func (s *ConfigSource) Save(ctx context.Context, account *calendar.ProviderAccount, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return invalidConfig(account, err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}
	var blob map[string]any
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}

	next := make(map[string]any, len(account.Configuration)+1)
	for k, v := range account.Configuration {
		next[k] = v
	}
	next[calendar.ConfigAvailability] = blob

	if err := s.accounts.UpdateConfiguration(ctx, account.ID, next); err != nil {
		return fmt.Errorf("save availability for %s: %w", account.ID, err)
	}
	account.Configuration = next
	account.Version++
	return nil
}
