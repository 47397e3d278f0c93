// Package stats caches derived per-owner monthly statistics. The queue
// engine's post-sync hook invalidates entries so the dashboard never serves
// totals that predate a delivered mutation.
package stats

import (
	"context"
	"fmt"
	"time"

	"fieldsync/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "fieldsync:stats:"

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps rdb. A nil client yields a disabled cache whose methods are safe
// no-ops, so the agent runs fine without redis configured.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Key buckets statistics by owner and calendar month.
func Key(ownerID string, period time.Time) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, ownerID, period.Format("2006-01"))
}

func (c *Cache) Get(ctx context.Context, ownerID string, period time.Time) (string, bool) {
	if c.rdb == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, Key(ownerID, period)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logger.Warn("stats cache read failed", zap.Error(err))
		return "", false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, ownerID string, period time.Time, value string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, Key(ownerID, period), value, c.ttl).Err(); err != nil {
		logger.Warn("stats cache write failed", zap.Error(err))
	}
}

func (c *Cache) Invalidate(ctx context.Context, ownerID string, period time.Time) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, Key(ownerID, period)).Err(); err != nil {
		logger.Warn("stats cache invalidation failed", zap.Error(err))
		return
	}
	logger.Debug("stats cache invalidated", zap.String("owner", ownerID))
}
