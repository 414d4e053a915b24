// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// Backend names accepted by PAGETRACK_STORE.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Store settings.
	Backend     string // "memory", "sqlite" or "postgres".
	SQLitePath  string // Database file for the sqlite backend.
	DatabaseURL string // Postgres URL for the postgres backend.
	OpTimeout   time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Backend:      envStr("PAGETRACK_STORE", BackendSQLite),
		SQLitePath:   envStr("PAGETRACK_SQLITE_PATH", "pagetrack.db"),
		DatabaseURL:  envStr("DATABASE_URL", ""),
		OpTimeout:    envDuration("PAGETRACK_OP_TIMEOUT", 30*time.Second),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: envStr("OTEL_EXPORTER_OTLP_INSECURE", "") == "true",
		ServiceName:  envStr("OTEL_SERVICE_NAME", "pagetrack"),
		LogLevel:     envStr("PAGETRACK_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: PAGETRACK_SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown PAGETRACK_STORE %q", c.Backend)
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("config: PAGETRACK_OP_TIMEOUT must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
