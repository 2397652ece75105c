// Package config provides default values for configuration.
package config

import "time"

// Server defaults
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8080
	DefaultBaseURL      = "http://localhost:8080"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Database defaults
const (
	DefaultDataDir       = "/data"
	DefaultBusyTimeoutMs = 5000
)

// Provider defaults
const (
	DefaultHTTPTimeout      = 15 * time.Second
	DefaultOutlookTenant    = "common"
	DefaultGraphBaseURL     = "https://graph.microsoft.com/v1.0"
	DefaultGoogleCalendarID = "primary"
)

// OAuth defaults
const (
	DefaultStateTTL         = 10 * time.Minute
	DefaultRefreshSkew      = 5 * time.Minute
	DefaultMaxReauthRetries = 2
)

// Availability defaults
const (
	DefaultTimezone          = "America/Guayaquil"
	DefaultBusyFailurePolicy = "degrade"
	DefaultSessionTTL        = 30 * time.Minute
)

// Store defaults
const (
	DefaultStoreBackend    = "sqlite"
	DefaultCleanupInterval = 5 * time.Minute
)

// Rate limit defaults
const (
	DefaultRateLimitRPM   = 120
	DefaultRateLimitBurst = 20
)

// Logging defaults
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)
