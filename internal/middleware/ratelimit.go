package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/pitch-booking/internal/config"
)

// bucketScript keeps {t: tokens, ts: last update ms} in a hash and refills
// continuously at ARGV[3] tokens per millisecond.  It returns
// {allowed, whole tokens left, ms until the next token}.
var bucketScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local b = redis.call('HMGET', KEYS[1], 't', 'ts')
local tokens = tonumber(b[1]) or capacity
local ts = tonumber(b[2]) or now
if now > ts then
  tokens = math.min(capacity, tokens + (now - ts) * rate)
end

local allowed, wait = 0, 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', KEYS[1], 't', tokens, 'ts', now)
redis.call('PEXPIRE', KEYS[1], ttl_ms)
return { allowed, math.floor(tokens), wait }
`)

// NewTokenBucket throttles the routes that take the field lock.  It is a
// pass-through when disabled or when rdb is nil, and it lets requests
// through when Redis errors.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}
	interval, tokens := cfg.RefillInterval, cfg.RefillTokens
	if interval < time.Millisecond {
		interval = time.Second
	}
	if tokens < 1 {
		tokens = 1
	}
	ttl := cfg.TTL
	if ttl < 5*interval {
		ttl = 5 * interval
	}
	perMs := float64(tokens) / float64(interval.Milliseconds())
	rate := strconv.FormatFloat(perMs, 'g', -1, 64)
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			res, err := bucketScript.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), cfg.Capacity, rate, ttl.Milliseconds()).Result()
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			allowed, remaining, waitMs, ok := parseBucketResult(res)
			if !ok {
				log.Warn("rate limiter returned garbage", zap.String("key", key), zap.Any("result", res))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if allowed {
				return next(c)
			}

			retry := (waitMs + 999) / 1000
			h.Set("Retry-After", strconv.FormatInt(retry, 10))
			if cfg.Debug {
				log.Debug("booking write throttled", zap.String("key", key), zap.Int64("wait_ms", waitMs))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too many booking requests",
				"retry_after": retry,
			})
		}
	}
}

func parseBucketResult(v interface{}) (allowed bool, remaining, waitMs int64, ok bool) {
	arr, isArr := v.([]interface{})
	if !isArr || len(arr) != 3 {
		return false, 0, 0, false
	}
	return fmt.Sprint(arr[0]) == "1", asInt64(arr[1]), asInt64(arr[2]), true
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// buildRateKey joins the components named by the key strategy, for
// example "ip_user_route" -> prefix:ip:<ip>:user:<id>:route:<method path>.
// Unknown components are skipped; an empty strategy means ip_user_route.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	strategy := strings.ToLower(cfg.KeyStrategy)
	if strategy == "" {
		strategy = "ip_user_route"
	}
	parts := []string{cfg.Prefix}
	for _, name := range strings.Split(strategy, "_") {
		switch name {
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			parts = append(parts, "ip", ip)
		case "user":
			parts = append(parts, "user", userID(c))
		case "route":
			parts = append(parts, "route", c.Request().Method+" "+c.Path())
		}
	}
	return strings.Join(parts, ":")
}
