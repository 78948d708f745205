package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	SessionTTL         time.Duration
	CacheTTL           time.Duration
	CacheMaxEntries    int
	CacheSweepEvery    time.Duration
	CacheRedisAddr     string
	CacheRedisPassword string
	CacheRedisDB       int
	MaxPostBytes       int
	LogLevel           slog.Level
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://lucid:lucid@db:5432/lucid?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", ""),
		SessionTTL:         GetDuration("SESSION_TTL_MIN", 30, time.Minute),
		CacheTTL:           GetDuration("CACHE_TTL_SECONDS", 300, time.Second),
		CacheMaxEntries:    GetInt("CACHE_MAX_ENTRIES", 100),
		CacheSweepEvery:    GetDuration("CACHE_SWEEP_SECONDS", 60, time.Second),
		CacheRedisAddr:     strings.TrimSpace(GetString("CACHE_REDIS_ADDR", "")),
		CacheRedisPassword: GetString("CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:       GetInt("CACHE_REDIS_DB", 0),
		MaxPostBytes:       GetInt("MAX_POST_BYTES", 1<<20),
		LogLevel:           parseLevel(GetString("LOG_LEVEL", "info")),
	}
}

// ErrMissingJWTSecret is returned by Validate when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("config: JWT_SECRET must be set")

// Validate reports settings the API cannot start without.
func (c APIConfig) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
