// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Realtime    RealtimeConfig
}

// RealtimeConfig controls the broadcast service's periodic loops.
type RealtimeConfig struct {
	SweepInterval time.Duration
	PingTimeout   time.Duration
	PushInterval  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/assess.db"),
		Realtime: RealtimeConfig{
			SweepInterval: getEnvDuration("HEARTBEAT_SWEEP_INTERVAL", 30*time.Second),
			PingTimeout:   getEnvDuration("HEARTBEAT_PING_TIMEOUT", 60*time.Second),
			PushInterval:  getEnvDuration("PROGRESS_PUSH_INTERVAL", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Realtime.SweepInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_SWEEP_INTERVAL must be > 0")
	}
	if c.Realtime.PingTimeout <= 0 {
		return fmt.Errorf("HEARTBEAT_PING_TIMEOUT must be > 0")
	}
	if c.Realtime.PushInterval <= 0 {
		return fmt.Errorf("PROGRESS_PUSH_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are read as seconds.
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
