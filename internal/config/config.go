// Package config loads service configuration from the environment with an
// optional YAML overlay for deployments that prefer a file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// Common errors
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
)

// Config holds all tunables for the service. Zero values are filled in by
// LoadFromEnv with sensible defaults.
type Config struct {
	// HTTP
	Port string `yaml:"port"`

	// Postgres/PostGIS connection string
	DatabaseURL string `yaml:"database_url"`

	// OS Names API key for postcode lookups. Empty disables postcode
	// resolution (coordinate lookups still work).
	OSNamesAPIKey string `yaml:"os_names_api_key"`

	// Police UK API
	PoliceAPIBaseURL string        `yaml:"police_api_base_url"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxRetries       int           `yaml:"max_retries"`

	// Sync scheduling
	SyncInterval time.Duration `yaml:"sync_interval"`

	// Calendar feed cache
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Per-IP rate limit for the public endpoints (requests per second).
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// DefaultPoliceAPIBaseURL is the public data.police.uk endpoint.
const DefaultPoliceAPIBaseURL = "https://data.police.uk/api"

// LoadFromEnv builds a Config from environment variables. If CONFIG_PATH
// points at a YAML file it is read first and the environment overrides it,
// so env always wins.
//
// Environment variables:
//   - PORT: HTTP listen port (default "8000")
//   - DATABASE_URL: Postgres DSN (required, database needs PostGIS)
//   - OS_NAMES_API_KEY: Ordnance Survey Names API key (optional)
//   - POLICE_API_BASE_URL: override for the Police UK API (default public endpoint)
//   - POLICE_API_MAX_RETRIES: attempts per upstream call (default 3)
//   - POLICE_API_TIMEOUT_SECONDS: per-attempt timeout (default 60)
//   - SYNC_INTERVAL_HOURS: hours between scheduled syncs (default 168 = weekly)
//   - CACHE_TTL_HOURS: calendar feed cache lifetime (default 3)
//   - RATE_LIMIT / RATE_BURST: per-IP request budget (default 5 rps, burst 10)
func LoadFromEnv() Config {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			// A malformed file is ignored rather than fatal; env still applies.
			_ = yaml.Unmarshal(data, &cfg)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if cfg.Port == "" {
		cfg.Port = "8000"
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("OS_NAMES_API_KEY"); v != "" {
		cfg.OSNamesAPIKey = v
	}
	if v := os.Getenv("POLICE_API_BASE_URL"); v != "" {
		cfg.PoliceAPIBaseURL = v
	}
	if cfg.PoliceAPIBaseURL == "" {
		cfg.PoliceAPIBaseURL = DefaultPoliceAPIBaseURL
	}

	if n := envInt("POLICE_API_MAX_RETRIES", 0); n > 0 {
		cfg.MaxRetries = n
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if n := envInt("POLICE_API_TIMEOUT_SECONDS", 0); n > 0 {
		cfg.RequestTimeout = time.Duration(n) * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if n := envInt("SYNC_INTERVAL_HOURS", 0); n > 0 {
		cfg.SyncInterval = time.Duration(n) * time.Hour
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 7 * 24 * time.Hour
	}
	if n := envInt("CACHE_TTL_HOURS", 0); n > 0 {
		cfg.CacheTTL = time.Duration(n) * time.Hour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 3 * time.Hour
	}

	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimit = f
		}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if n := envInt("RATE_BURST", 0); n > 0 {
		cfg.RateBurst = n
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}

	return cfg
}

// Validate checks that required settings are present.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	return nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
