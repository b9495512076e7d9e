package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9540" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.AgentURL != "http://127.0.0.1:9530" {
		t.Fatalf("agent url = %q", cfg.AgentURL)
	}
	if cfg.PollInterval != 20*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval)
	}
	if cfg.ToastTTL != 2200*time.Millisecond {
		t.Fatalf("toast ttl = %s", cfg.ToastTTL)
	}
	if cfg.LogTailLines != 80 || cfg.LogCapacity != 200 {
		t.Fatalf("log sizes = %d/%d", cfg.LogTailLines, cfg.LogCapacity)
	}
	if !cfg.LogsReconnect || !cfg.ProbeEnabled {
		t.Fatalf("expected reconnect and probe enabled by default")
	}
	if cfg.FeaturesBackups != BackupsAuto {
		t.Fatalf("features_backups = %q", cfg.FeaturesBackups)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WARPDECK_AGENT_URL", "http://localhost:9999/")
	t.Setenv("WARPDECK_POLL_INTERVAL", "5s")
	t.Setenv("WARPDECK_FEATURES_BACKUPS", "OFF")
	t.Setenv("WARPDECK_LOGS_RECONNECT", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentURL != "http://localhost:9999" {
		t.Fatalf("agent url = %q, want trailing slash trimmed", cfg.AgentURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval)
	}
	if cfg.FeaturesBackups != BackupsOff {
		t.Fatalf("features_backups = %q", cfg.FeaturesBackups)
	}
	if cfg.LogsReconnect {
		t.Fatalf("expected reconnect disabled")
	}
}

func TestLoadExplicitFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "warpdeck.yaml")
	body := "listen_addr: 0.0.0.0:8080\nlog_capacity: 50\ndb_path: \"\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8080" || cfg.LogCapacity != 50 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.DBPath != "" {
		t.Fatalf("db path = %q, want journal disabled", cfg.DBPath)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			AgentURL:        "http://127.0.0.1:9530",
			AgentTimeout:    time.Second,
			PollInterval:    time.Second,
			ToastTTL:        time.Second,
			BackoffInitial:  time.Second,
			BackoffMax:      2 * time.Second,
			LogCapacity:     10,
			LogTailLines:    5,
			FeaturesBackups: "auto",
			LogFormat:       "text",
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative agent url", func(c *Config) { c.AgentURL = "/api" }},
		{"ftp agent url", func(c *Config) { c.AgentURL = "ftp://host" }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"negative timeout", func(c *Config) { c.AgentTimeout = -time.Second }},
		{"backoff max below initial", func(c *Config) { c.BackoffMax = time.Millisecond }},
		{"zero capacity", func(c *Config) { c.LogCapacity = 0 }},
		{"negative tail", func(c *Config) { c.LogTailLines = -1 }},
		{"bad backups mode", func(c *Config) { c.FeaturesBackups = "maybe" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
