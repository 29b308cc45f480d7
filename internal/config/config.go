// Package config provides centralized configuration management for the
// bridge. It loads settings from environment variables with sensible
// defaults and validates everything on startup to fail fast on
// misconfiguration - a missing case-service credential must abort before any
// row is processed.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Remote    RemoteConfig
	Batch     BatchConfig
	Fetch     FetchConfig
	Overrides OverridesConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// RemoteConfig holds the case-service connection settings.
type RemoteConfig struct {
	// BaseURL is the case service collection endpoint base (required)
	BaseURL string `env:"CASE_API_URL" required:"true"`

	// APIKey is the credential sent with every call (required)
	APIKey string `env:"CASE_API_KEY" required:"true"`

	// Timeout is the per-call ceiling (default: 30s)
	Timeout time.Duration `env:"CASE_API_TIMEOUT" default:"30s"`
}

// BatchConfig holds submission pacing and admission settings.
type BatchConfig struct {
	// Pace is the delay between create calls (default: 400ms, <=150/minute)
	Pace time.Duration `env:"BATCH_PACE" default:"400ms"`

	// MaxConcurrent is the maximum number of parallel batches (default: 3)
	MaxConcurrent int `env:"BATCH_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long to wait for a batch slot (default: 30s)
	MaxWaitTime time.Duration `env:"BATCH_MAX_WAIT_TIME" default:"30s"`

	// MaxFileSize is the maximum allowed CSV size in bytes (default: 20MB)
	MaxFileSize int64 `env:"BATCH_MAX_FILE_SIZE" default:"20971520"`
}

// FetchConfig holds pagination settings for the listing endpoint.
type FetchConfig struct {
	// PageSize is the listing page size (default: 100)
	PageSize int `env:"FETCH_PAGE_SIZE" default:"100"`

	// SnapshotInterval is how often the background snapshot refresh runs.
	// Zero disables the refresher (default: 5m)
	SnapshotInterval time.Duration `env:"FETCH_SNAPSHOT_INTERVAL" default:"5m"`
}

// OverridesConfig holds the process-wide payload overrides. Each value is
// either present (non-empty, overriding every row) or absent.
type OverridesConfig struct {
	CompanyID  string `env:"COMPANY_ID"`
	ReferralID string `env:"REFERRAL_ID"`
	Tags       string `env:"TAGS"`
	Counsel    string `env:"COUNSEL"`
	FeeSplit   string `env:"FEE_SPLIT"`
	TotalFee   string `env:"TOTAL_FEE"`
}

// RateLimitConfig holds inbound rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey gates all /api routes behind X-API-Key auth (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted inbound keys
	APIKeys []string `env:"API_KEYS"`

	// AllowedOrigins is a comma-separated CORS allowlist (default: *)
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" default:"*"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
