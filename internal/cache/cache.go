// Package cache provides a small Redis read cache for hot draw-status queries.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/openlotto/drawd/internal/lottery"
	"github.com/openlotto/drawd/pkg/logger"
)

const statusKey = "drawd:status:current"

// StatusCache caches the current draw status snapshot. Cache failures degrade
// to a miss; the store stays the source of truth.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New creates a StatusCache with the given TTL.
func New(client *redis.Client, ttl time.Duration, log *logger.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &StatusCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached status, or ok=false on miss or cache failure.
func (c *StatusCache) Get(ctx context.Context) (lottery.Status, bool) {
	raw, err := c.client.Get(ctx, statusKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Debug("status cache read failed")
		}
		return lottery.Status{}, false
	}
	var status lottery.Status
	if err := json.Unmarshal(raw, &status); err != nil {
		c.log.WithError(err).Warn("status cache entry corrupt, dropping")
		c.Invalidate(ctx)
		return lottery.Status{}, false
	}
	return status, true
}

// Set stores the status snapshot for the configured TTL.
func (c *StatusCache) Set(ctx context.Context, status lottery.Status) {
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statusKey, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("status cache write failed")
	}
}

// Invalidate drops the cached snapshot. Called after any mutation that changes
// the current draw.
func (c *StatusCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, statusKey).Err(); err != nil {
		c.log.WithError(err).Debug("status cache invalidation failed")
	}
}
