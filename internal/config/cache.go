package config

import "time"

// CacheConfig defines settings for the showtime list cache.  When Enabled
// is false or no Redis client could be created, every lookup goes to the
// backend.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads CACHE_ENABLED, CACHE_TTL and CACHE_PREFIX.
func LoadCacheConfig() CacheConfig {
	c := CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 30*time.Second),
		Prefix:  envStr("CACHE_PREFIX", "seatview"),
	}
	if c.TTL <= 0 {
		c.Enabled = false
	}
	return c
}
