// Package config provides centralized configuration management for the
// migration service. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"time"

	"github.com/casewise/migrator/internal/engine"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Import   ImportConfig
	Rollback RollbackConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
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

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds source file intake settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// DataDir is where uploaded source files are kept (default: data/uploads)
	DataDir string `env:"UPLOAD_DATA_DIR" default:"data/uploads"`

	// SampleRows is how many rows detection and suggestion read (default: 50)
	SampleRows int `env:"UPLOAD_SAMPLE_ROWS" default:"50"`

	// PreviewRows is how many rows the preview endpoint returns (default: 20)
	PreviewRows int `env:"UPLOAD_PREVIEW_ROWS" default:"20"`
}

// ImportConfig holds validation and import processing settings.
type ImportConfig struct {
	// MaxConcurrent is the maximum number of parallel imports (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// ValidateCadence is rows between validation checkpoints (default: 1000)
	ValidateCadence int `env:"IMPORT_VALIDATE_CADENCE" default:"1000"`

	// ImportCadence is rows between import progress updates (default: 100)
	ImportCadence int `env:"IMPORT_PROGRESS_CADENCE" default:"100"`

	// RowTimeout bounds one row's transaction (default: 5s)
	RowTimeout time.Duration `env:"IMPORT_ROW_TIMEOUT" default:"5s"`

	// ValidateTimeout bounds a full validation pass (default: 30m)
	ValidateTimeout time.Duration `env:"IMPORT_VALIDATE_TIMEOUT" default:"30m"`

	// Timeout bounds a full import run (default: 2h)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"2h"`
}

// RollbackConfig holds rollback settings.
type RollbackConfig struct {
	// Window is how long after completion a rollback stays legal (default: 168h)
	Window time.Duration `env:"ROLLBACK_WINDOW" default:"168h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key validation (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
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

// Engine maps the relevant sections onto the engine's configuration.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		DataDir:              c.Upload.DataDir,
		SampleRows:           c.Upload.SampleRows,
		PreviewRows:          c.Upload.PreviewRows,
		ValidateCadence:      c.Import.ValidateCadence,
		ImportCadence:        c.Import.ImportCadence,
		RowTimeout:           c.Import.RowTimeout,
		ValidateTimeout:      c.Import.ValidateTimeout,
		ImportTimeout:        c.Import.Timeout,
		MaxConcurrentImports: c.Import.MaxConcurrent,
		ImportMaxWait:        c.Import.MaxWaitTime,
		RollbackWindow:       c.Rollback.Window,
	}
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
