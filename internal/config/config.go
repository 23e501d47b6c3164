// Package config provides centralized configuration management for dqm.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables; the CLI applies
// flag overrides on top.
type Config struct {
	Paths    PathsConfig
	Rules    RulesConfig
	Ledger   LedgerConfig
	Schedule ScheduleConfig
	Server   ServerConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// PathsConfig locates the inputs and outputs of a run.
type PathsConfig struct {
	// SourceDir is scanned for incoming .csv files (default: source_data)
	SourceDir string `env:"DQM_SOURCE_DIR" default:"source_data"`

	// SchemaFile lists the declared fields (default: config/schema.csv)
	SchemaFile string `env:"DQM_SCHEMA_FILE" default:"config/schema.csv"`

	// RulesFile is the rule config, CSV or YAML by extension (default: config/rules.csv)
	RulesFile string `env:"DQM_RULES_FILE" default:"config/rules.csv"`

	// OutputDir receives the clean, bad and metadata files (default: output)
	OutputDir string `env:"DQM_OUTPUT_DIR" default:"output"`
}

// RulesConfig holds rule lookup settings.
type RulesConfig struct {
	// CategorySuffixLen is the length of the timestamp suffix stripped from a
	// file name to get its category (default: 18)
	CategorySuffixLen int `env:"RULES_CATEGORY_SUFFIX_LEN" default:"18"`
}

// LedgerConfig selects where scanned files are recorded.
type LedgerConfig struct {
	// Backend is one of csv, sqlite, postgres, memory (default: csv)
	Backend string `env:"LEDGER_BACKEND" default:"csv"`

	// Path is the ledger file for the csv and sqlite backends (default: scanned_files.csv)
	Path string `env:"LEDGER_PATH" default:"scanned_files.csv"`

	// URL is the PostgreSQL connection string, required for the postgres backend.
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
}

// ScheduleConfig controls unattended runs under `dqm serve`.
type ScheduleConfig struct {
	// Cron is a standard 5-field cron expression; empty disables scheduled runs
	Cron string `env:"SCHEDULE_CRON"`

	// Watch triggers a run when files appear in the source directory (default: false)
	Watch bool `env:"SCHEDULE_WATCH" default:"false"`

	// Debounce coalesces bursts of file events into one run (default: 2s)
	Debounce time.Duration `env:"SCHEDULE_DEBOUNCE" default:"2s"`

	// RunOnStart runs once when the server starts (default: true)
	RunOnStart bool `env:"SCHEDULE_RUN_ON_START" default:"true"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of keys accepted by the API
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects API requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File additionally appends log entries to this path when set
	File string `env:"LOG_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
