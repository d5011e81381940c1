// Package config loads runtime configuration from the environment,
// following the teacher's .env-then-environment pattern via godotenv.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DBPool holds the connection pool tuning knobs the audit sink's
// pgxpool.Pool is built with, read from the same DB_* environment
// variables the teacher's internal/db package used directly.
type DBPool struct {
	MaxConns              int
	MinConns              int
	MaxConnLifetime       time.Duration
	MaxConnIdleTime       time.Duration
	HealthCheckPeriod     time.Duration
	MaxConnLifetimeJitter time.Duration
	StatementCacheSize    int
}

// Config holds everything the relay needs at startup. Unlike the
// teacher's Config, nothing here is required — this service has no
// accounts and no database of record, so every field has a usable
// default.
type Config struct {
	WSPort string

	// Production enables salted-hash client ids; any NODE_ENV containing
	// "prod" turns this on.
	Production bool
	Salt1      string
	Salt2      string

	LogLevel string

	// DatabaseURL, if set, enables the Postgres audit sink. Empty means
	// audit events are only logged, never persisted.
	DatabaseURL string
	DBPool      DBPool

	// NATSURL, if set, enables publishing room lifecycle events.
	NATSURL string

	ConnectRate  float64
	ConnectBurst int
}

// Load reads configuration from a local .env file (if present) and the
// process environment, applying defaults for everything unset.
func Load() *Config {
	_ = godotenv.Load() // .env is optional; ignore absence

	nodeEnv := getEnv("NODE_ENV", "")

	return &Config{
		WSPort:      getEnv("WS_PORT", "8080"),
		Production:  strings.Contains(strings.ToLower(nodeEnv), "prod"),
		Salt1:       getEnv("SALT1", ""),
		Salt2:       getEnv("SALT2", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBPool: DBPool{
			MaxConns:              getEnvInt("DB_MAX_CONNECTIONS", 25),
			MinConns:              getEnvInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime:       getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime:       getEnvDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
			HealthCheckPeriod:     getEnvDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			MaxConnLifetimeJitter: getEnvDuration("DB_MAX_CONN_LIFETIME_JITTER", 5*time.Minute),
			StatementCacheSize:    getEnvInt("DB_STATEMENT_CACHE_SIZE", 100),
		},
		NATSURL:      getEnv("NATS_URL", ""),
		ConnectRate:  getEnvFloat("CONNECT_RATE", 5),
		ConnectBurst: getEnvInt("CONNECT_BURST", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
