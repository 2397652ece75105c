// Package config handles configuration loading from environment variables and optional YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dtorcivia/calbook/internal/util"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Google       GoogleConfig
	Outlook      OutlookConfig
	HTTP         HTTPConfig
	OAuth        OAuthConfig
	Availability AvailabilityConfig
	Store        StoreConfig
	Redis        RedisConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Logging      LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path          string
	BusyTimeoutMs int
}

// GoogleConfig holds Google OAuth settings.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	CalendarID   string
}

// OutlookConfig holds Microsoft identity platform settings.
type OutlookConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Tenant       string
	Scopes       []string
	GraphBaseURL string
}

// HTTPConfig bounds every outbound vendor call.
type HTTPConfig struct {
	Timeout time.Duration
}

// OAuthConfig holds token lifecycle and authorization flow settings.
type OAuthConfig struct {
	StateTTL         time.Duration
	RefreshSkew      time.Duration
	MaxReauthRetries int
}

// AvailabilityConfig holds availability engine settings.
type AvailabilityConfig struct {
	DefaultTimezone   string
	BusyFailurePolicy string // "degrade" or "fail"
	SessionTTL        time.Duration
}

// StoreConfig selects the backend for short-lived entries: oauth state and
// scheduling sessions.
type StoreConfig struct {
	Backend         string // "memory", "sqlite" or "redis"
	CleanupInterval time.Duration
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// AuthConfig holds credential encryption and API access settings.
type AuthConfig struct {
	EncryptionKey string
	// APIToken guards the /api routes. Empty leaves them open, for
	// deployments behind an authenticating proxy.
	APIToken string
}

// RateLimitConfig bounds /api calls per tenant.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load builds the configuration from defaults, then the optional YAML file
// named by CALBOOK_CONFIG_FILE, then environment overrides.
func Load() (*Config, error) {
	cfg := Defaults()

	if err := loadConfigFile(cfg, os.Getenv("CALBOOK_CONFIG_FILE")); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	cfg.deriveRedirects()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns a configuration with every default applied.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			BaseURL:      DefaultBaseURL,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Database: DatabaseConfig{
			Path:          DefaultDataDir + "/calbook.db",
			BusyTimeoutMs: DefaultBusyTimeoutMs,
		},
		Google: GoogleConfig{
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			CalendarID: DefaultGoogleCalendarID,
		},
		Outlook: OutlookConfig{
			Tenant:       DefaultOutlookTenant,
			Scopes:       []string{"offline_access", "User.Read", "Calendars.ReadWrite"},
			GraphBaseURL: DefaultGraphBaseURL,
		},
		HTTP: HTTPConfig{Timeout: DefaultHTTPTimeout},
		OAuth: OAuthConfig{
			StateTTL:         DefaultStateTTL,
			RefreshSkew:      DefaultRefreshSkew,
			MaxReauthRetries: DefaultMaxReauthRetries,
		},
		Availability: AvailabilityConfig{
			DefaultTimezone:   DefaultTimezone,
			BusyFailurePolicy: DefaultBusyFailurePolicy,
			SessionTTL:        DefaultSessionTTL,
		},
		Store: StoreConfig{
			Backend:         DefaultStoreBackend,
			CleanupInterval: DefaultCleanupInterval,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "calbook:",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: DefaultRateLimitRPM,
			Burst:             DefaultRateLimitBurst,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("CALBOOK_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("CALBOOK_SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("CALBOOK_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.ReadTimeout = getEnvDuration("CALBOOK_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("CALBOOK_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	if dir, ok := os.LookupEnv("CALBOOK_DATA_DIR"); ok {
		cfg.Database.Path = strings.TrimRight(dir, "/") + "/calbook.db"
	}
	cfg.Database.Path = getEnv("CALBOOK_DATABASE_PATH", cfg.Database.Path)

	cfg.Google.ClientID = getEnv("GOOGLE_CLIENT_ID", cfg.Google.ClientID)
	cfg.Google.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", cfg.Google.ClientSecret)
	cfg.Google.RedirectURI = getEnv("GOOGLE_REDIRECT_URI", cfg.Google.RedirectURI)

	cfg.Outlook.ClientID = getEnv("OUTLOOK_CLIENT_ID", cfg.Outlook.ClientID)
	cfg.Outlook.ClientSecret = getEnv("OUTLOOK_CLIENT_SECRET", cfg.Outlook.ClientSecret)
	cfg.Outlook.RedirectURI = getEnv("OUTLOOK_REDIRECT_URI", cfg.Outlook.RedirectURI)
	cfg.Outlook.Tenant = getEnv("OUTLOOK_TENANT", cfg.Outlook.Tenant)

	cfg.HTTP.Timeout = getEnvDuration("CALBOOK_HTTP_TIMEOUT", cfg.HTTP.Timeout)

	cfg.OAuth.StateTTL = getEnvDuration("CALBOOK_OAUTH_STATE_TTL", cfg.OAuth.StateTTL)
	cfg.OAuth.RefreshSkew = getEnvDuration("CALBOOK_OAUTH_REFRESH_SKEW", cfg.OAuth.RefreshSkew)
	cfg.OAuth.MaxReauthRetries = getEnvInt("CALBOOK_OAUTH_MAX_REAUTH_RETRIES", cfg.OAuth.MaxReauthRetries)

	cfg.Availability.DefaultTimezone = getEnv("CALBOOK_DEFAULT_TIMEZONE", cfg.Availability.DefaultTimezone)
	cfg.Availability.BusyFailurePolicy = getEnv("CALBOOK_BUSY_FAILURE_POLICY", cfg.Availability.BusyFailurePolicy)
	cfg.Availability.SessionTTL = getEnvDuration("CALBOOK_SESSION_TTL", cfg.Availability.SessionTTL)

	cfg.Store.Backend = getEnv("CALBOOK_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.CleanupInterval = getEnvDuration("CALBOOK_CLEANUP_INTERVAL", cfg.Store.CleanupInterval)

	cfg.Redis.Addr = getEnv("CALBOOK_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("CALBOOK_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("CALBOOK_REDIS_DB", cfg.Redis.DB)

	cfg.Auth.EncryptionKey = getEnv("CALBOOK_ENCRYPTION_KEY", cfg.Auth.EncryptionKey)
	cfg.Auth.APIToken = getEnv("CALBOOK_API_TOKEN", cfg.Auth.APIToken)

	cfg.RateLimit.RequestsPerMinute = getEnvInt("CALBOOK_RATE_LIMIT_RPM", cfg.RateLimit.RequestsPerMinute)
	cfg.RateLimit.Burst = getEnvInt("CALBOOK_RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	cfg.Logging.Level = getEnv("CALBOOK_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("CALBOOK_LOG_FORMAT", cfg.Logging.Format)
}

func (c *Config) deriveRedirects() {
	base := strings.TrimRight(c.Server.BaseURL, "/")
	if c.Google.RedirectURI == "" {
		c.Google.RedirectURI = base + "/oauth/google/callback"
	}
	if c.Outlook.RedirectURI == "" {
		c.Outlook.RedirectURI = base + "/oauth/outlook/callback"
	}
}

// Validate checks that required configuration fields are set.
func (c *Config) Validate() error {
	if c.Auth.EncryptionKey == "" {
		return fmt.Errorf("CALBOOK_ENCRYPTION_KEY environment variable is required")
	}
	if c.Google.ClientID == "" && c.Outlook.ClientID == "" {
		return fmt.Errorf("at least one of GOOGLE_CLIENT_ID or OUTLOOK_CLIENT_ID is required")
	}
	if _, err := util.LoadLocation(c.Availability.DefaultTimezone); err != nil {
		return err
	}
	switch c.Availability.BusyFailurePolicy {
	case "degrade", "fail":
	default:
		return fmt.Errorf("busy failure policy must be degrade or fail, got %q", c.Availability.BusyFailurePolicy)
	}
	switch c.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("store backend must be memory, sqlite or redis, got %q", c.Store.Backend)
	}
	if c.OAuth.MaxReauthRetries < 0 {
		return fmt.Errorf("max reauth retries cannot be negative")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
