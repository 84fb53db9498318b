// Package config centralises runtime configuration for the exchange server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Logging configures the zerolog sink.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "pretty"
	File   string `yaml:"file"`   // empty, "none" or "disabled" keeps console only
}

// RateLimit configures the admin API per-client rate limiter.
type RateLimit struct {
	Disabled    bool          `yaml:"disabled"`
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Config is the full configuration tree loaded from defaults, an optional
// YAML file, and environment overrides, in that order.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	AdminAddr       string        `yaml:"admin_addr"`
	DatabaseURL     string        `yaml:"database_url"` // empty selects the in-memory store
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Log             Logging       `yaml:"log"`
	RateLimit       RateLimit     `yaml:"rate_limit"`
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	return Config{
		ListenAddr:      ":12345",
		AdminAddr:       ":8080",
		DatabaseURL:     "",
		ShutdownTimeout: 10 * time.Second,
		Log: Logging{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimit{
			MaxRequests: 100,
			Window:      time.Second,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty), and environment variables on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	return fromEnv(cfg), nil
}

// FromEnv loads configuration from environment variables over defaults,
// honouring CONFIG_FILE when set.
func FromEnv() (Config, error) {
	return Load(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
}

func fromEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv("EXCHANGE_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("ADMIN_PORT")); v != "" {
		cfg.AdminAddr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SHUTDOWN_TIMEOUT")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.ShutdownTimeout = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.Log.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Log.File = v
	}
	if os.Getenv("RATE_LIMIT_DISABLED") == "1" {
		cfg.RateLimit.Disabled = true
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RateLimit.MaxRequests = parsed
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.RateLimit.Window = parsed
		}
	}
	return cfg
}
