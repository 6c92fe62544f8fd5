// Package cache keeps available-slot search results in Redis.
//
// Entries are keyed by stable query parameters plus a per-field version
// number.  Every committed write on a field bumps that version, so older
// entries are never read again and simply expire with their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

// SlotCache implements scheduling.SlotCache.  Redis failures are logged
// and treated as misses; they never fail the request.
type SlotCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

var _ scheduling.SlotCache = (*SlotCache)(nil)

// NewSlotCache defaults prefix to "avail" and ttl to 30s.
func NewSlotCache(rdb *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *SlotCache {
	if prefix == "" {
		prefix = "avail"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SlotCache{rdb: rdb, ttl: ttl, prefix: prefix, log: log}
}

func (c *SlotCache) versionKey(fieldID uint64) string {
	return fmt.Sprintf("%s:field:%d:ver", c.prefix, fieldID)
}

func (c *SlotCache) entryKey(k scheduling.SlotKey, version int64) string {
	return fmt.Sprintf("%s:field:%d:v%d:%s:%d", c.prefix, k.FieldID, version, k.Date, int64(k.Duration/time.Minute))
}

func (c *SlotCache) version(ctx context.Context, fieldID uint64) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(fieldID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// GetSlots looks k up under the field's current version and returns that
// version for the matching PutSlots.  The version is -1 when Redis could
// not be read.
func (c *SlotCache) GetSlots(ctx context.Context, k scheduling.SlotKey) (scheduling.SlotSearch, int64, bool) {
	var res scheduling.SlotSearch
	ver, err := c.version(ctx, k.FieldID)
	if err != nil {
		c.log.Warn("slot cache: read version failed", zap.Uint64("field_id", k.FieldID), zap.Error(err))
		return res, -1, false
	}
	raw, err := c.rdb.Get(ctx, c.entryKey(k, ver)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("slot cache: get failed", zap.Uint64("field_id", k.FieldID), zap.Error(err))
		}
		return res, ver, false
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.Warn("slot cache: corrupt entry", zap.Uint64("field_id", k.FieldID), zap.Error(err))
		return res, ver, false
	}
	return res, ver, true
}

// PutSlots stores res under the version GetSlots returned before the
// search ran.  If the field was invalidated in between, the entry lands
// under a version nobody reads any more and just expires.
func (c *SlotCache) PutSlots(ctx context.Context, k scheduling.SlotKey, version int64, res scheduling.SlotSearch) {
	if version < 0 {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.entryKey(k, version), raw, c.ttl).Err(); err != nil {
		c.log.Warn("slot cache: set failed", zap.Uint64("field_id", k.FieldID), zap.Error(err))
	}
}

// Invalidate bumps the field version.
func (c *SlotCache) Invalidate(ctx context.Context, fieldID uint64) {
	if err := c.rdb.Incr(ctx, c.versionKey(fieldID)).Err(); err != nil {
		c.log.Warn("slot cache: invalidate failed", zap.Uint64("field_id", fieldID), zap.Error(err))
	}
}
