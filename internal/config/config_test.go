package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"CLAWCONTROL_SERVER_URL", "CLAWCONTROL_TOKEN", "CLAWCONTROL_VAULT_DIR",
		"CLAWCONTROL_LOG_LEVEL", "CLAWCONTROL_LOG_FORMAT", "CLAWCONTROL_METRICS_ADDR",
		"CLAWCONTROL_RECONNECT_DELAY", "CLAWCONTROL_REQUEST_TIMEOUT",
		"CLAWCONTROL_DEBOUNCE_WINDOW", "CLAWCONTROL_SUPPRESS_WINDOW",
		"CLAWCONTROL_PULSE_INTERVAL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "http://localhost:3777" {
		t.Errorf("unexpected default server URL %q", cfg.ServerURL)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("unexpected logging defaults %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("unexpected reconnect delay %v", cfg.ReconnectDelay)
	}
	if cfg.DebounceWindow != 300*time.Millisecond {
		t.Errorf("unexpected debounce window %v", cfg.DebounceWindow)
	}
	if cfg.SuppressWindow != time.Second {
		t.Errorf("unexpected suppress window %v", cfg.SuppressWindow)
	}
	if cfg.PulseInterval != 30*time.Second {
		t.Errorf("unexpected pulse interval %v", cfg.PulseInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLAWCONTROL_SERVER_URL", "https://notes.example.com")
	t.Setenv("CLAWCONTROL_TOKEN", "secret")
	t.Setenv("CLAWCONTROL_RECONNECT_DELAY", "10s")
	t.Setenv("CLAWCONTROL_DEBOUNCE_WINDOW", "bogus")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "https://notes.example.com" {
		t.Errorf("server URL not overridden: %q", cfg.ServerURL)
	}
	if cfg.Token != "secret" {
		t.Errorf("token not overridden: %q", cfg.Token)
	}
	if cfg.ReconnectDelay != 10*time.Second {
		t.Errorf("reconnect delay not overridden: %v", cfg.ReconnectDelay)
	}
	// malformed durations fall back to the default
	if cfg.DebounceWindow != 300*time.Millisecond {
		t.Errorf("malformed duration should keep default, got %v", cfg.DebounceWindow)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{ServerURL: "http://localhost:3777", Token: "t", VaultDir: dir}, false},
		{"missing server", Config{Token: "t", VaultDir: dir}, true},
		{"missing token", Config{ServerURL: "http://localhost:3777", VaultDir: dir}, true},
		{"missing vault", Config{ServerURL: "http://localhost:3777", Token: "t"}, true},
		{"vault absent", Config{ServerURL: "http://localhost:3777", Token: "t", VaultDir: filepath.Join(dir, "nope")}, true},
		{"vault not a directory", Config{ServerURL: "http://localhost:3777", Token: "t", VaultDir: file}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
