// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/gateway and cmd/npidctl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Upstream backend
	NPIDBaseURL      string
	NPIDEmail        string
	NPIDPassword     string
	NPIDAPIKey       string
	NPIDSessionFile  string
	NPIDTimeout      time.Duration
	NPIDRequestsPerM int

	// Gateway server
	GatewayHost string
	GatewayPort int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting (inbound, per client IP)
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool

	// Maintenance
	KeepaliveInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	baseURL := envOr("NPID_BASE_URL", "")
	if baseURL == "" {
		return nil, fmt.Errorf("NPID_BASE_URL must be set")
	}

	return &Config{
		NPIDBaseURL:      strings.TrimRight(baseURL, "/"),
		NPIDEmail:        envOr("NPID_EMAIL", ""),
		NPIDPassword:     envOr("NPID_PASSWORD", ""),
		NPIDAPIKey:       envOr("NPID_API_KEY", ""),
		NPIDSessionFile:  envOr("NPID_SESSION_FILE", defaultSessionFile()),
		NPIDTimeout:      time.Duration(envInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		NPIDRequestsPerM: envInt("LEGACY_REQUESTS_PER_MINUTE", 60),

		GatewayHost: envOr("GATEWAY_HOST", "0.0.0.0"),
		GatewayPort: envInt("GATEWAY_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CacheEnabled: envBool("CACHE_ENABLED", true),

		KeepaliveInterval: time.Duration(envInt("KEEPALIVE_MINUTES", 10)) * time.Minute,
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".npid_session.json"
	}
	return filepath.Join(home, ".npid_session.json")
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
