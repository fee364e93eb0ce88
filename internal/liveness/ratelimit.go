package liveness

import (
	"context"
	"fmt"
	"time"
)

// RateLimitResult is the outcome of a fixed-window rate-limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimit implements a fixed-window counter: key, limit, window. INCR and
// TTL run in one Redis pipeline; on the first hit of a window a separate
// EXPIRE call then sets the expiry, so the counter and its expiry are not set
// in one atomic step. On Redis error it logs a warning
// and fails open (Allowed=true) — the rate-limit path never blocks ingestion
// on cache unavailability.
func (c *Cache) RateLimit(ctx context.Context, scope, key string, limit int, window time.Duration) RateLimitResult {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", scope, key)

	pipe := c.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("liveness cache: rate limit check failed, failing open", "scope", scope, "key", key, "error", err)
		return RateLimitResult{Allowed: true, Remaining: limit}
	}

	count := incr.Val()
	if count == 1 {
		// First hit in this window: set the expiry now.
		if err := c.redis.Expire(ctx, redisKey, window).Err(); err != nil {
			c.logger.Warn("liveness cache: setting rate limit expiry failed", "scope", scope, "key", key, "error", err)
		}
	}

	remaining := int(int64(limit) - count)
	resetIn := ttl.Val()
	if resetIn <= 0 {
		resetIn = window
	}

	if count > int64(limit) {
		return RateLimitResult{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(resetIn)}
	}
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{Allowed: true, Remaining: remaining, ResetAt: time.Now().Add(resetIn)}
}
