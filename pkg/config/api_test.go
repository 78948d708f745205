package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	cfg := LoadAPIConfig()
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.CacheMaxEntries != 100 {
		t.Fatalf("expected 100 cache entries, got %d", cfg.CacheMaxEntries)
	}
	if cfg.MaxPostBytes != 1048576 {
		t.Fatalf("expected 1MiB post limit, got %d", cfg.MaxPostBytes)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("expected info level, got %s", cfg.LogLevel)
	}
}

func TestLoadAPIConfigOverrides(t *testing.T) {
	t.Setenv("CACHE_TTL_SECONDS", "90")
	t.Setenv("SESSION_TTL_MIN", "45")
	t.Setenv("CACHE_MAX_ENTRIES", "7")
	t.Setenv("CACHE_REDIS_ADDR", " redis:6379 ")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadAPIConfig()
	if cfg.CacheTTL != 90*time.Second {
		t.Fatalf("unexpected cache ttl %s", cfg.CacheTTL)
	}
	if cfg.SessionTTL != 45*time.Minute {
		t.Fatalf("unexpected session ttl %s", cfg.SessionTTL)
	}
	if cfg.CacheMaxEntries != 7 {
		t.Fatalf("unexpected max entries %d", cfg.CacheMaxEntries)
	}
	if cfg.CacheRedisAddr != "redis:6379" {
		t.Fatalf("expected trimmed redis addr, got %q", cfg.CacheRedisAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected log level %s", cfg.LogLevel)
	}
}

func TestGetDurationRejectsInvalidValues(t *testing.T) {
	t.Setenv("LUCID_TEST_DURATION", "abc")
	if got := GetDuration("LUCID_TEST_DURATION", 3, time.Second); got != 3*time.Second {
		t.Fatalf("expected fallback for non-numeric value, got %s", got)
	}
	t.Setenv("LUCID_TEST_DURATION", "-4")
	if got := GetDuration("LUCID_TEST_DURATION", 3, time.Second); got != 3*time.Second {
		t.Fatalf("expected fallback for negative value, got %s", got)
	}
}

func TestValidateRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg := LoadAPIConfig()
	if cfg.JWTSecret != "" {
		t.Fatalf("expected no default secret, got %q", cfg.JWTSecret)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}

	t.Setenv("JWT_SECRET", "  s3cret  ")
	if err := LoadAPIConfig().Validate(); err != nil {
		t.Fatalf("expected configured secret to validate, got %v", err)
	}
}
