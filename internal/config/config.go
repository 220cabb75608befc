// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the possyncd runtime configuration.
type Config struct {
	DataDir       string
	DatabaseURL   string
	HTTPAddr      string
	SyncInterval  time.Duration
	SweepInterval time.Duration
	ProbeInterval time.Duration
	LogLevel      string
}

// Load reads configuration from a .env file (if present) and the
// environment, applying defaults for everything but the remote DSN.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:     getenv("POSSYNC_DATA_DIR", "./data"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPAddr:    getenv("POSSYNC_HTTP_ADDR", ":8080"),
		LogLevel:    getenv("POSSYNC_LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.SyncInterval, err = getduration("POSSYNC_SYNC_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getduration("POSSYNC_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = getduration("POSSYNC_PROBE_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
