package config

import "time"

// CacheConfig defines settings for the available-slot cache.  When
// Enabled is false or no Redis client is configured, slot searches always
// hit the database.  Prefix namespaces the keys and TTL bounds how long an
// entry may live even if no write ever invalidates it.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// Cache returns the slot cache settings.
func (a App) Cache() CacheConfig {
	c := CacheConfig{Enabled: a.CacheEnabled, TTL: a.CacheTTL, Prefix: a.CachePrefix}
	if c.TTL <= 0 {
		c.TTL = time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "avail"
	}
	return c
}
