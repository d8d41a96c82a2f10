package main

import (
	"fmt"
	"os"
	"time"

	"docseq/internal/domain/sequence"
)

// Storage backends.
const (
	storagePostgres = "postgres"
	storageMemory   = "memory"
)

// config is read from the environment at startup.
type config struct {
	Port        string
	Env         string
	LogLevel    string
	Storage     string
	DatabaseURL string

	DBMaxConns       int
	DBMinConns       int
	StatementTimeout time.Duration

	JWTSecret       string
	LockMode        sequence.LockMode
	DefaultTimeZone *time.Location
	IdempotencyTTL  time.Duration
}

func loadConfig() (config, error) {
	cfg := config{
		Port:             getEnv("APP_PORT", "8080"),
		Env:              getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Storage:          getEnv("STORAGE", storagePostgres),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 25),
		DBMinConns:       getEnvInt("DB_MIN_CONNS", 5),
		StatementTimeout: getEnvDuration("STATEMENT_TIMEOUT", 30*time.Second),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		IdempotencyTTL:   getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	}

	switch cfg.Storage {
	case storagePostgres:
		cfg.DatabaseURL = mustEnv("DATABASE_URL")
	case storageMemory:
	default:
		return cfg, fmt.Errorf("unknown STORAGE %q (want %s or %s)", cfg.Storage, storagePostgres, storageMemory)
	}

	switch mode := getEnv("SEQUENCE_LOCK_MODE", "wait"); mode {
	case "wait":
		cfg.LockMode = sequence.LockWait
	case "nowait":
		cfg.LockMode = sequence.LockNoWait
	default:
		return cfg, fmt.Errorf("unknown SEQUENCE_LOCK_MODE %q (want wait or nowait)", mode)
	}

	loc, err := time.LoadLocation(getEnv("DEFAULT_TIMEZONE", "UTC"))
	if err != nil {
		return cfg, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	cfg.DefaultTimeZone = loc

	return cfg, nil
}

func (c config) development() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
