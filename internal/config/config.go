package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string

	// TargetURL is the backend the gateway fronts. Everything outside the
	// management prefix is proxied there after the policy gate allows it.
	TargetURL string

	// JWTSecret signs management tokens and verifies bearer tokens on
	// proxied traffic.
	JWTSecret string

	// RedisAddr enables the Redis-backed rate-limit counter store when set.
	// Empty means in-process counters.
	RedisAddr string

	// CacheTTL is how long cached responses for resource-heavy endpoints
	// stay servable.
	CacheTTL time.Duration

	// CallRetention bounds how long call records are kept before the
	// retention job prunes them.
	CallRetention time.Duration
}

// Load reads env vars and falls back to defaults so the gateway can boot
// with zero configuration in development.
func Load() (Config, error) {
	cfg := Config{
		Environment:   getEnv("WARDEN_ENV", "development"),
		HTTPPort:      getEnv("WARDEN_HTTP_PORT", "8080"),
		DatabasePath:  getEnv("WARDEN_DB_PATH", filepath.Join("data", "warden.db")),
		TargetURL:     getEnv("WARDEN_TARGET_URL", "http://localhost:3000"),
		JWTSecret:     getEnv("WARDEN_JWT_SECRET", "warden-dev-secret"),
		RedisAddr:     getEnv("WARDEN_REDIS_ADDR", ""),
		CacheTTL:      getDuration("WARDEN_CACHE_TTL_SECONDS", 300),
		CallRetention: getDuration("WARDEN_CALL_RETENTION_SECONDS", 30*24*3600),
	}

	if _, err := url.Parse(cfg.TargetURL); err != nil {
		return Config{}, fmt.Errorf("parse target url: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the gateway runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getDuration(key string, fallbackSeconds int) time.Duration {
	if val := os.Getenv(key); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return time.Duration(fallbackSeconds) * time.Second
}
