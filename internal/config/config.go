// Package config provides configuration management for WarpDeck.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backup feature modes for FeaturesBackups.
const (
	BackupsAuto = "auto"
	BackupsOn   = "on"
	BackupsOff  = "off"
)

// Config holds all runtime configuration for WarpDeck.
type Config struct {
	// ── Dashboard ────────────────────────────────────────────────────────────
	ListenAddr string `mapstructure:"listen_addr"`
	// DBPath is the SQLite action journal. Empty disables the journal.
	DBPath string `mapstructure:"db_path"`

	// ── Agent ────────────────────────────────────────────────────────────────
	AgentURL     string        `mapstructure:"agent_url"`
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
	ProbeEnabled bool          `mapstructure:"probe_enabled"`

	// ── Sync engine ──────────────────────────────────────────────────────────
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ToastTTL        time.Duration `mapstructure:"toast_ttl"`
	FeaturesBackups string        `mapstructure:"features_backups"` // auto | on | off

	// ── Log stream ───────────────────────────────────────────────────────────
	LogTailLines   int           `mapstructure:"log_tail_lines"`
	LogCapacity    int           `mapstructure:"log_capacity"`
	LogsReconnect  bool          `mapstructure:"logs_reconnect"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`

	// ── Process logging ──────────────────────────────────────────────────────
	LogLevel  string `mapstructure:"log_level"`  // DEBUG | INFO | WARN | ERROR
	LogFormat string `mapstructure:"log_format"` // text | json
}

// Load reads config from file (./config.yaml or ~/.warpdeck/config.yaml, or
// the explicit path when non-empty) and falls back to defaults. Environment
// variables with prefix WARPDECK_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	// --- Defaults ---
	v.SetDefault("listen_addr", "127.0.0.1:9540")
	v.SetDefault("db_path", "warpdeck.db")

	v.SetDefault("agent_url", "http://127.0.0.1:9530")
	v.SetDefault("agent_timeout", 10*time.Second)
	v.SetDefault("probe_enabled", true)

	v.SetDefault("poll_interval", 20*time.Second)
	v.SetDefault("toast_ttl", 2200*time.Millisecond)
	v.SetDefault("features_backups", BackupsAuto)

	v.SetDefault("log_tail_lines", 80)
	v.SetDefault("log_capacity", 200)
	v.SetDefault("logs_reconnect", true)
	v.SetDefault("backoff_initial", time.Second)
	v.SetDefault("backoff_max", 30*time.Second)

	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "text")

	// --- Config file ---
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.warpdeck")
		if err := v.ReadInConfig(); err != nil {
			// config file is optional; ignore "not found" errors
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("WARPDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the sync engine cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.AgentURL)
	if err != nil {
		return fmt.Errorf("agent_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent_url must be an absolute http(s) URL, got %q", c.AgentURL)
	}
	c.AgentURL = strings.TrimRight(c.AgentURL, "/")

	for name, d := range map[string]time.Duration{
		"agent_timeout":   c.AgentTimeout,
		"poll_interval":   c.PollInterval,
		"toast_ttl":       c.ToastTTL,
		"backoff_initial": c.BackoffInitial,
		"backoff_max":     c.BackoffMax,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.BackoffMax < c.BackoffInitial {
		return fmt.Errorf("backoff_max (%s) is below backoff_initial (%s)", c.BackoffMax, c.BackoffInitial)
	}
	if c.LogCapacity <= 0 {
		return fmt.Errorf("log_capacity must be positive, got %d", c.LogCapacity)
	}
	if c.LogTailLines < 0 {
		return fmt.Errorf("log_tail_lines must not be negative, got %d", c.LogTailLines)
	}

	c.FeaturesBackups = strings.ToLower(strings.TrimSpace(c.FeaturesBackups))
	switch c.FeaturesBackups {
	case BackupsAuto, BackupsOn, BackupsOff:
	default:
		return fmt.Errorf("features_backups must be auto, on or off, got %q", c.FeaturesBackups)
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ParseLogLevel maps a config string to a slog level. Unknown values fall back to INFO.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
