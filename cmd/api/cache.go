package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/firi193/lucid/internal/cache"
	"github.com/firi193/lucid/pkg/config"
)

// buildCache prefers Redis when configured and falls back to the in-process cache.
func buildCache(cfg config.APIConfig, log *slog.Logger) (cache.PostCache, string, func()) {
	if addr := strings.TrimSpace(cfg.CacheRedisAddr); addr != "" {
		redisCache, err := cache.NewRedis(addr, cfg.CacheRedisPassword, cfg.CacheRedisDB, cfg.CacheTTL)
		if err != nil {
			log.Warn("redis post cache unavailable, using memory", "addr", addr, "error", err)
		} else {
			return redisCache, "redis", func() { _ = redisCache.Close() }
		}
	}
	mem, err := cache.NewMemory(cache.MemoryOptions{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
		SweepEvery: cfg.CacheSweepEvery,
	})
	if err != nil {
		log.Error("failed to build post cache", "error", err)
		os.Exit(1)
	}
	return mem, "memory", mem.Close
}
