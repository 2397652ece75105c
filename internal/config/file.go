package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// fileDuration accepts "90s"-style strings or bare integers as seconds.
type fileDuration time.Duration

func (d *fileDuration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!int" {
			var seconds int64
			if err := value.Decode(&seconds); err != nil {
				return err
			}
			*d = fileDuration(time.Duration(seconds) * time.Second)
			return nil
		}
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = fileDuration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration type")
	}
}

type ConfigFile struct {
	Server       *ServerConfigFile       `yaml:"server"`
	Database     *DatabaseConfigFile     `yaml:"database"`
	Google       *GoogleConfigFile       `yaml:"google"`
	Outlook      *OutlookConfigFile      `yaml:"outlook"`
	HTTP         *HTTPConfigFile         `yaml:"http"`
	OAuth        *OAuthConfigFile        `yaml:"oauth"`
	Availability *AvailabilityConfigFile `yaml:"availability"`
	Store        *StoreConfigFile        `yaml:"store"`
	Redis        *RedisConfigFile        `yaml:"redis"`
	Auth         *AuthConfigFile         `yaml:"auth"`
	RateLimit    *RateLimitConfigFile    `yaml:"rate_limit"`
	Logging      *LoggingConfigFile      `yaml:"logging"`
}

type ServerConfigFile struct {
	Host         *string       `yaml:"host"`
	Port         *int          `yaml:"port"`
	BaseURL      *string       `yaml:"base_url"`
	ReadTimeout  *fileDuration `yaml:"read_timeout"`
	WriteTimeout *fileDuration `yaml:"write_timeout"`
}

type DatabaseConfigFile struct {
	Path          *string `yaml:"path"`
	BusyTimeoutMs *int    `yaml:"busy_timeout_ms"`
}

type GoogleConfigFile struct {
	ClientID     *string   `yaml:"client_id"`
	ClientSecret *string   `yaml:"client_secret"`
	RedirectURI  *string   `yaml:"redirect_uri"`
	Scopes       *[]string `yaml:"scopes"`
	CalendarID   *string   `yaml:"calendar_id"`
}

type OutlookConfigFile struct {
	ClientID     *string   `yaml:"client_id"`
	ClientSecret *string   `yaml:"client_secret"`
	RedirectURI  *string   `yaml:"redirect_uri"`
	Tenant       *string   `yaml:"tenant"`
	Scopes       *[]string `yaml:"scopes"`
	GraphBaseURL *string   `yaml:"graph_base_url"`
}

type HTTPConfigFile struct {
	Timeout *fileDuration `yaml:"timeout"`
}

type OAuthConfigFile struct {
	StateTTL         *fileDuration `yaml:"state_ttl"`
	RefreshSkew      *fileDuration `yaml:"refresh_skew"`
	MaxReauthRetries *int          `yaml:"max_reauth_retries"`
}

type AvailabilityConfigFile struct {
	DefaultTimezone   *string       `yaml:"default_timezone"`
	BusyFailurePolicy *string       `yaml:"busy_failure_policy"`
	SessionTTL        *fileDuration `yaml:"session_ttl"`
}

type StoreConfigFile struct {
	Backend         *string       `yaml:"backend"`
	CleanupInterval *fileDuration `yaml:"cleanup_interval"`
}

type RedisConfigFile struct {
	Addr     *string `yaml:"addr"`
	Password *string `yaml:"password"`
	DB       *int    `yaml:"db"`
	Prefix   *string `yaml:"prefix"`
}

type AuthConfigFile struct {
	EncryptionKey *string `yaml:"encryption_key"`
	APIToken      *string `yaml:"api_token"`
}

type RateLimitConfigFile struct {
	RequestsPerMinute *int `yaml:"requests_per_minute"`
	Burst             *int `yaml:"burst"`
}

type LoggingConfigFile struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

func loadConfigFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyConfigFile(cfg, &file)
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *fileDuration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}

func applyConfigFile(cfg *Config, file *ConfigFile) {
	if cfg == nil || file == nil {
		return
	}

	if s := file.Server; s != nil {
		set(&cfg.Server.Host, s.Host)
		set(&cfg.Server.Port, s.Port)
		set(&cfg.Server.BaseURL, s.BaseURL)
		setDuration(&cfg.Server.ReadTimeout, s.ReadTimeout)
		setDuration(&cfg.Server.WriteTimeout, s.WriteTimeout)
	}

	if d := file.Database; d != nil {
		if d.Path != nil {
			cfg.Database.Path = filepath.Clean(*d.Path)
		}
		set(&cfg.Database.BusyTimeoutMs, d.BusyTimeoutMs)
	}

	if g := file.Google; g != nil {
		set(&cfg.Google.ClientID, g.ClientID)
		set(&cfg.Google.ClientSecret, g.ClientSecret)
		set(&cfg.Google.RedirectURI, g.RedirectURI)
		set(&cfg.Google.Scopes, g.Scopes)
		set(&cfg.Google.CalendarID, g.CalendarID)
	}

	if o := file.Outlook; o != nil {
		set(&cfg.Outlook.ClientID, o.ClientID)
		set(&cfg.Outlook.ClientSecret, o.ClientSecret)
		set(&cfg.Outlook.RedirectURI, o.RedirectURI)
		set(&cfg.Outlook.Tenant, o.Tenant)
		set(&cfg.Outlook.Scopes, o.Scopes)
		set(&cfg.Outlook.GraphBaseURL, o.GraphBaseURL)
	}

	if h := file.HTTP; h != nil {
		setDuration(&cfg.HTTP.Timeout, h.Timeout)
	}

	if o := file.OAuth; o != nil {
		setDuration(&cfg.OAuth.StateTTL, o.StateTTL)
		setDuration(&cfg.OAuth.RefreshSkew, o.RefreshSkew)
		set(&cfg.OAuth.MaxReauthRetries, o.MaxReauthRetries)
	}

	if a := file.Availability; a != nil {
		set(&cfg.Availability.DefaultTimezone, a.DefaultTimezone)
		set(&cfg.Availability.BusyFailurePolicy, a.BusyFailurePolicy)
		setDuration(&cfg.Availability.SessionTTL, a.SessionTTL)
	}

	if s := file.Store; s != nil {
		set(&cfg.Store.Backend, s.Backend)
		setDuration(&cfg.Store.CleanupInterval, s.CleanupInterval)
	}

	if r := file.Redis; r != nil {
		set(&cfg.Redis.Addr, r.Addr)
		set(&cfg.Redis.Password, r.Password)
		set(&cfg.Redis.DB, r.DB)
		set(&cfg.Redis.Prefix, r.Prefix)
	}

	if a := file.Auth; a != nil {
		set(&cfg.Auth.EncryptionKey, a.EncryptionKey)
		set(&cfg.Auth.APIToken, a.APIToken)
	}

	if r := file.RateLimit; r != nil {
		set(&cfg.RateLimit.RequestsPerMinute, r.RequestsPerMinute)
		set(&cfg.RateLimit.Burst, r.Burst)
	}

	if l := file.Logging; l != nil {
		set(&cfg.Logging.Level, l.Level)
		set(&cfg.Logging.Format, l.Format)
	}
}
