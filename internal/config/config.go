// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string        // debug, info, warn, error
	ListenAddr        string        // Server listen address (e.g., ":8080")
	MetricsListenAddr string        // Metrics listener address (e.g., "localhost:9090")
	DatabasePath      string        // SQLite database path
	BaseURL           string        // Public base URL embedded in QR payloads
	AdminCode         string        // Required: access code for the bootstrapped admin account
	ProtectedPrefix   string        // Path prefix token targets must live under
	SessionTimeout    time.Duration // Session lifetime
}

// Load parses configuration from environment variables.
// All optional fields have defaults suitable for local deployment.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          os.Getenv("LOG_LEVEL"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		MetricsListenAddr: os.Getenv("METRICS_LISTEN_ADDR"),
		DatabasePath:      os.Getenv("DATABASE_PATH"),
		BaseURL:           os.Getenv("BASE_URL"),
		AdminCode:         os.Getenv("ADMIN_CODE"),
		ProtectedPrefix:   os.Getenv("PROTECTED_PREFIX"),
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	if cfg.MetricsListenAddr == "" {
		cfg.MetricsListenAddr = "localhost:9090"
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/data/qrgate.db"
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}

	if cfg.ProtectedPrefix == "" {
		cfg.ProtectedPrefix = "/dashboard"
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	cfg.SessionTimeout = 24 * time.Hour
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		cfg.SessionTimeout = d
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.AdminCode == "" {
		return fmt.Errorf("ADMIN_CODE environment variable is required")
	}
	if !strings.HasPrefix(c.ProtectedPrefix, "/") {
		return fmt.Errorf("PROTECTED_PREFIX must be an absolute path, got %q", c.ProtectedPrefix)
	}
	return nil
}
