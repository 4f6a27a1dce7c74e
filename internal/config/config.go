// Package config provides configuration management for scopedb.
// It loads settings from environment variables with the SCOPEDB_ prefix
// and provides sensible defaults for all configuration options.
//
// Connector settings (names, trust weights, latency budgets) live in a
// separate YAML manifest so they can be tuned and hot-reloaded without a
// rebuild; see LoadManifest.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the scopedb service.
type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Aggregation AggregationConfig
	Security    SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port       int     // Server port (default: 8000)
	Host       string  // Server host (default: 127.0.0.1)
	RatePerSec float64 // Global request rate limit (default: 10)
	RateBurst  int     // Global request burst size (default: 20)
}

// StorageConfig contains profile store configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to the data directory for SQLite (default: ./data)
	PostgresDSN   string // DSN used when StorageEngine is postgres
}

// AggregationConfig contains orchestrator and cache tuning knobs.
type AggregationConfig struct {
	// RunDeadline is the hard ceiling for one aggregation run. It must be
	// strictly greater than every connector latency budget.
	RunDeadline time.Duration

	// CacheTTL is how long a finalized run result stays valid.
	CacheTTL time.Duration

	// CacheSize bounds the number of cached run results.
	CacheSize int

	// RetryMax is the number of consecutive connector failures tolerated
	// before the connector's circuit opens.
	RetryMax int

	// RetryBackoff is how long an open circuit waits before half-open probes.
	RetryBackoff time.Duration

	// ManifestPath points to the YAML connector manifest.
	ManifestPath string

	// PivotGraphPath points to the YAML pivot graph; empty uses the
	// built-in default graph.
	PivotGraphPath string
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token (production mode)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the SCOPEDB_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:       getEnvInt("SCOPEDB_PORT", 8000),
			Host:       getEnv("SCOPEDB_HOST", "127.0.0.1"),
			RatePerSec: getEnvFloat("SCOPEDB_RATE_PER_SEC", 10.0),
			RateBurst:  getEnvInt("SCOPEDB_RATE_BURST", 20),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("SCOPEDB_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("SCOPEDB_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("SCOPEDB_POSTGRES_DSN", ""),
		},
		Aggregation: AggregationConfig{
			RunDeadline:    getEnvDuration("SCOPEDB_RUN_DEADLINE", 15*time.Second),
			CacheTTL:       getEnvDuration("SCOPEDB_CACHE_TTL", 5*time.Minute),
			CacheSize:      getEnvInt("SCOPEDB_CACHE_SIZE", 512),
			RetryMax:       getEnvInt("SCOPEDB_RETRY_MAX", 3),
			RetryBackoff:   getEnvDuration("SCOPEDB_RETRY_BACKOFF", 30*time.Second),
			ManifestPath:   getEnv("SCOPEDB_CONNECTORS_PATH", "./connectors.yaml"),
			PivotGraphPath: getEnv("SCOPEDB_PIVOT_GRAPH_PATH", ""),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("SCOPEDB_SECURITY_MODE", "development"),
			APIToken:     getEnv("SCOPEDB_API_TOKEN", ""),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "15s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
