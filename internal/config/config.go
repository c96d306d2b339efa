// Package config loads the upload service settings from environment
// variables, applies defaults and validates everything on startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Remote      RemoteConfig
	Submit      SubmitConfig
	Database    DatabaseConfig
	Preferences PreferencesConfig
	Rate        RateLimitConfig
	Security    SecurityConfig
	Logging     LoggingConfig
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

	// ShutdownTimeout bounds graceful shutdown, including draining a running submission (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// RemoteConfig points at the OData services.
type RemoteConfig struct {
	// BaseURL is the scheme and host of the OData services (required)
	BaseURL string `env:"REMOTE_BASE_URL" envAlt:"ODATA_BASE_URL" required:"true"`

	// CreatePath is the measurement document entity set; empty uses the built-in path
	CreatePath string `env:"REMOTE_CREATE_PATH"`

	// LookupPath is the measuring point master data entity set; empty uses the built-in path
	LookupPath string `env:"REMOTE_LOOKUP_PATH"`

	// BearerToken is sent as "Authorization: Bearer <token>" when set
	BearerToken string `env:"REMOTE_BEARER_TOKEN"`

	// Timeout is the per-request HTTP timeout (default: 30s)
	Timeout time.Duration `env:"REMOTE_TIMEOUT" default:"30s"`

	// LookupEnabled turns on measuring point enrichment after import (default: true)
	LookupEnabled bool `env:"REMOTE_LOOKUP_ENABLED" default:"true"`

	// LookupLatest also fetches the latest counter reading per point (default: false)
	LookupLatest bool `env:"REMOTE_LOOKUP_LATEST" default:"false"`
}

// SubmitConfig holds import and submission settings.
type SubmitConfig struct {
	// MaxFileSize is the maximum accepted spreadsheet size in bytes (default: 10MB)
	MaxFileSize int64 `env:"SUBMIT_MAX_FILE_SIZE" default:"10485760"`

	// InterRowDelay is the pause after each submitted row (default: 150ms)
	InterRowDelay time.Duration `env:"SUBMIT_INTER_ROW_DELAY" default:"150ms"`

	// Timeout bounds one whole submission run (default: 30m)
	Timeout time.Duration `env:"SUBMIT_TIMEOUT" default:"30m"`

	// BatchTTL is how long an imported batch stays available (default: 2h)
	BatchTTL time.Duration `env:"SUBMIT_BATCH_TTL" default:"2h"`
}

// DatabaseConfig holds the optional PostgreSQL log archive settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; empty disables the archive
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ArchiveRetention is how long archived outcome entries are kept (default: 90 days)
	ArchiveRetention time.Duration `env:"ARCHIVE_RETENTION" default:"2160h"`

	// PruneInterval is how often expired entries are deleted (default: 24h)
	PruneInterval time.Duration `env:"ARCHIVE_PRUNE_INTERVAL" default:"24h"`
}

// PreferencesConfig holds column settings storage.
type PreferencesConfig struct {
	// DBPath is the SQLite file; empty keeps preferences in memory
	DBPath string `env:"PREFS_DB_PATH"`

	// Version is the column settings schema version (default: v2)
	Version string `env:"PREFS_VERSION" default:"v2"`

	// ApplyAttempts is how often loading settings is tried (default: 10)
	ApplyAttempts int `env:"PREFS_APPLY_ATTEMPTS" default:"10"`

	// ApplyDelay is the pause between attempts (default: 150ms)
	ApplyDelay time.Duration `env:"PREFS_APPLY_DELAY" default:"150ms"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import and submit endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects API requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}
