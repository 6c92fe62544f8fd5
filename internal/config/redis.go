package config

// Redis backs the slot cache and the rate limiter.  If the server cannot
// be reached at startup, NewRedisClient returns nil and callers degrade
// gracefully by disabling both.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the REDIS_* variables.
// REDIS_HOST plus REDIS_PORT take precedence over REDIS_ADDR; with
// neither set the client targets localhost:6379.
func (a App) RedisOptions() *redis.Options {
	addr := a.RedisAddr
	if a.RedisHost != "" && a.RedisPort != "" {
		addr = a.RedisHost + ":" + a.RedisPort
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	var tlsConf *tls.Config
	if a.RedisTLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &redis.Options{
		Addr:      addr,
		Password:  a.RedisPassword,
		DB:        a.RedisDB,
		TLSConfig: tlsConf,
	}
}

// NewRedisClient connects and pings with a short timeout.  It returns
// nil together with the ping error when the server is unavailable.
func NewRedisClient(a App) (*redis.Client, error) {
	client := redis.NewClient(a.RedisOptions())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
