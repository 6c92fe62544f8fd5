package config

import "time"

// RateLimitConfig drives the Redis token bucket in front of the write
// routes.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// RateLimit returns the token bucket settings.  RATE_LIMIT_BURST overrides
// the capacity and RATE_LIMIT_REFILL_EVERY replaces the refill rate with
// one token per interval.  Bucket keys live at least five refill
// intervals.
func (a App) RateLimit() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        a.RateLimitEnabled,
		Capacity:       a.RateLimitCapacity,
		RefillTokens:   a.RateLimitRefillTokens,
		RefillInterval: a.RateLimitRefillInterval,
		TTL:            a.RateLimitTTL,
		KeyStrategy:    a.RateLimitKeyStrategy,
		Prefix:         a.RateLimitPrefix,
		Debug:          a.RateLimitDebug,
	}
	if a.RateLimitBurst > 0 {
		def.Capacity = a.RateLimitBurst
	}
	if a.RateLimitRefillEvery > 0 {
		def.RefillTokens = 1
		def.RefillInterval = a.RateLimitRefillEvery
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if def.Prefix == "" {
		def.Prefix = "rl"
	}
	minTTL := 5 * def.RefillInterval
	if def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}
