// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all bridge daemon configuration.
type Config struct {
	// Connection
	ServerURL string // base address of the notes app plugin (http or https)
	Token     string // shared secret passed as the ws token query parameter

	// Vault
	VaultDir string // root of the synchronized notes tree

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (empty disables the listener)
	MetricsAddr string

	// Timing
	ReconnectDelay time.Duration
	RequestTimeout time.Duration
	DebounceWindow time.Duration
	SuppressWindow time.Duration
	PulseInterval  time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL:      envOr("CLAWCONTROL_SERVER_URL", "http://localhost:3777"),
		Token:          envOr("CLAWCONTROL_TOKEN", ""),
		VaultDir:       envOr("CLAWCONTROL_VAULT_DIR", ""),
		LogLevel:       envOr("CLAWCONTROL_LOG_LEVEL", "info"),
		LogFormat:      envOr("CLAWCONTROL_LOG_FORMAT", "console"),
		MetricsAddr:    envOr("CLAWCONTROL_METRICS_ADDR", ""),
		ReconnectDelay: envDuration("CLAWCONTROL_RECONNECT_DELAY", 3*time.Second),
		RequestTimeout: envDuration("CLAWCONTROL_REQUEST_TIMEOUT", 10*time.Second),
		DebounceWindow: envDuration("CLAWCONTROL_DEBOUNCE_WINDOW", 300*time.Millisecond),
		SuppressWindow: envDuration("CLAWCONTROL_SUPPRESS_WINDOW", time.Second),
		PulseInterval:  envDuration("CLAWCONTROL_PULSE_INTERVAL", 30*time.Second),
	}
	return cfg, nil
}

// Validate checks that required settings are present and usable.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.Token == "" {
		return fmt.Errorf("auth token is required")
	}
	if c.VaultDir == "" {
		return fmt.Errorf("vault directory is required")
	}
	info, err := os.Stat(c.VaultDir)
	if err != nil {
		return fmt.Errorf("vault directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault directory %s is not a directory", c.VaultDir)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
