package config

import (
	"os"
	"time"
)

// ProfileCacheConfig controls the Redis-backed user profile cache.
// When Enabled is false or no Redis client is configured, the services
// read straight through to the database. TTL is the safety-net expiry
// on cached profiles; entries are also invalidated explicitly on
// sign-out and token-version bumps, so the TTL only bounds staleness
// after a missed invalidation.
type ProfileCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// LoadProfileCacheConfig reads environment variables to build a
// ProfileCacheConfig. Defaults are used when variables are not set.
func LoadProfileCacheConfig() ProfileCacheConfig {
	return ProfileCacheConfig{
		Enabled: getenv("PROFILE_CACHE_ENABLED", "true") == "true",
		TTL:     parseDur(getenv("PROFILE_CACHE_TTL", "5m")),
	}
}

// Helper functions shared with redis.go and ratelimit.go
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Second
	}
	return d
}
