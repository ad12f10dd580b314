package config

import "time"

// CacheConfig controls the Redis cache of first-turn chat answers.  When
// Enabled is false or no Redis client is configured, answers are not cached.
// MaxBytes skips caching of answers longer than that.
type CacheConfig struct {
	Enabled  bool
	TTL      time.Duration
	Prefix   string
	MaxBytes int
}

// LoadCacheConfig reads CACHE_* variables, using defaults when unset.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:  envBool("CACHE_ENABLED", true),
		TTL:      envDur("CACHE_TTL", 10*time.Minute),
		Prefix:   envStr("CACHE_PREFIX", "cache"),
		MaxBytes: envInt("CACHE_MAX_BYTES", 16384),
	}
}
