// Package config loads and validates engine configuration from env and an
// optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds engine configuration loaded from the environment.
type Config struct {
	// RemoteURL is the base URL of the remote REST endpoint (e.g.
	// https://project.example.co). Sync stays queued until this is set.
	RemoteURL string `mapstructure:"REMOTE_URL"`
	// APIKey is the static API key sent with every remote call.
	APIKey string `mapstructure:"API_KEY"`
	// DataDir is the directory holding the local SQLite database.
	DataDir string `mapstructure:"DATA_DIR"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Schemas declares per-table wire schemas, e.g.
	// "patients:name,dob,phone_no=phone;visits:visit_date". Empty means
	// payloads are sent as queued.
	Schemas string `mapstructure:"SCHEMAS"`

	// SyncInterval is the periodic sync trigger interval.
	SyncInterval time.Duration `mapstructure:"SYNC_INTERVAL"`
	// ConnectivityInterval is the reachability probe interval.
	ConnectivityInterval time.Duration `mapstructure:"CONNECTIVITY_INTERVAL"`
	// ProbeURL is the endpoint probed for reachability.
	ProbeURL string `mapstructure:"PROBE_URL"`
	// ProbeTimeout bounds each reachability probe.
	ProbeTimeout time.Duration `mapstructure:"PROBE_TIMEOUT"`
	// DebounceWindow batches bursts of local mutations into one pass.
	DebounceWindow time.Duration `mapstructure:"DEBOUNCE_WINDOW"`
	// SettleDelay is the pause after connectivity returns before syncing.
	SettleDelay time.Duration `mapstructure:"SETTLE_DELAY"`

	// HTTPTimeout bounds each remote call.
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`
	// MaxHTTPRetries caps attempts per remote call (including the first).
	MaxHTTPRetries int `mapstructure:"MAX_HTTP_RETRIES"`
	// RetryBaseDelay is the initial backoff delay, doubled per attempt.
	RetryBaseDelay time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	// MaxQueueRetries caps drain attempts before an operation stays FAILED.
	MaxQueueRetries int `mapstructure:"MAX_QUEUE_RETRIES"`
	// RetentionDays is how long SYNCED queue entries are kept.
	RetentionDays int `mapstructure:"RETENTION_DAYS"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("REMOTE_URL", "")
	v.SetDefault("API_KEY", "")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SCHEMAS", "")
	v.SetDefault("SYNC_INTERVAL", "60s")
	v.SetDefault("CONNECTIVITY_INTERVAL", "30s")
	v.SetDefault("PROBE_URL", "https://clients3.google.com/generate_204")
	v.SetDefault("PROBE_TIMEOUT", "20s")
	v.SetDefault("DEBOUNCE_WINDOW", "500ms")
	v.SetDefault("SETTLE_DELAY", "1s")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("MAX_HTTP_RETRIES", 3)
	v.SetDefault("RETRY_BASE_DELAY", "1s")
	v.SetDefault("MAX_QUEUE_RETRIES", 5)
	v.SetDefault("RETENTION_DAYS", 30)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints that Viper cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("DATA_DIR must not be empty")
	}
	if c.RemoteURL != "" && !strings.HasPrefix(c.RemoteURL, "http://") && !strings.HasPrefix(c.RemoteURL, "https://") {
		return errors.New("REMOTE_URL must be an http(s) URL")
	}
	if c.MaxHTTPRetries < 1 {
		return errors.New("MAX_HTTP_RETRIES must be at least 1")
	}
	if c.MaxQueueRetries < 1 {
		return errors.New("MAX_QUEUE_RETRIES must be at least 1")
	}
	if c.RetentionDays < 1 {
		return errors.New("RETENTION_DAYS must be at least 1")
	}
	if c.SyncInterval <= 0 || c.ConnectivityInterval <= 0 {
		return errors.New("intervals must be positive")
	}
	return nil
}

// Retention returns the synced-entry retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Configured reports whether the remote endpoint is usable. The engine keeps
// queueing while unconfigured and drains once configuration arrives.
func (c *Config) Configured() bool {
	return c.RemoteURL != "" && c.APIKey != ""
}
