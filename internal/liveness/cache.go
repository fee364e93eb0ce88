// Package liveness is the Redis-backed Liveness Cache: online/last-seen
// status, a short-lived api-key-prefix lookup cache, and the fixed-window
// rate limiter shared by HTTP and MQTT ingress.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a single Redis client. On any Redis error it logs a warning and
// returns the fail-open default appropriate to the call — never a visible
// error on the ingestion path.
type Cache struct {
	redis  *redis.Client
	logger *slog.Logger
}

func New(rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{redis: rdb, logger: logger}
}

func statusKey(deviceID int64) string   { return fmt.Sprintf("device:status:%d", deviceID) }
func lastSeenKey(deviceID int64) string { return fmt.Sprintf("device:lastseen:%d", deviceID) }

// SetOnline marks a device online and refreshes its last-seen timestamp, with
// status expiring after ttl (typically heartbeat_ttl).
func (c *Cache) SetOnline(ctx context.Context, deviceID int64, ttl time.Duration, seenAt time.Time) {
	pipe := c.redis.Pipeline()
	pipe.Set(ctx, statusKey(deviceID), "online", ttl)
	pipe.Set(ctx, lastSeenKey(deviceID), seenAt.UTC().Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("liveness cache: setting online status failed", "device_id", deviceID, "error", err)
	}
}

// Status is the cached liveness state for a device.
type Status struct {
	IsOnline bool
	LastSeen *time.Time
	// Source reports whether IsOnline came from "cache" or had to fall back
	// to "unknown" because the cache was unavailable.
	Source string
}

// GetStatus returns the cached online/last-seen state for a device. On a
// Redis error it returns Source="unknown" rather than propagating the error —
// callers should fall back to admin_status-only reasoning.
func (c *Cache) GetStatus(ctx context.Context, deviceID int64) Status {
	online, err := c.redis.Get(ctx, statusKey(deviceID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("liveness cache: reading status failed", "device_id", deviceID, "error", err)
		return Status{Source: "unknown"}
	}

	var lastSeen *time.Time
	if raw, err := c.redis.Get(ctx, lastSeenKey(deviceID)).Result(); err == nil {
		if t, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
			lastSeen = &t
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("liveness cache: reading last_seen failed", "device_id", deviceID, "error", err)
	}

	return Status{
		IsOnline: online == "online",
		LastSeen: lastSeen,
		Source:   "cache",
	}
}

// ClearStatus removes the cached status and last-seen entries for a device
// (used when a device is deleted or deactivated).
func (c *Cache) ClearStatus(ctx context.Context, deviceID int64) {
	if err := c.redis.Del(ctx, statusKey(deviceID), lastSeenKey(deviceID)).Err(); err != nil {
		c.logger.Warn("liveness cache: clearing status failed", "device_id", deviceID, "error", err)
	}
}

// ClearAll flushes every liveness, auth-cache, and rate-limit key IoTFlow
// manages. Intended for admin cache-flush operations and test teardown.
func (c *Cache) ClearAll(ctx context.Context) error {
	var keys []string
	for _, pattern := range []string{"device:*", "authcache:*", "ratelimit:*"} {
		iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scanning liveness keys: %w", err)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Stats reports basic cache utilization for the admin inspection endpoint.
type Stats struct {
	OnlineDevices int64
	Reachable     bool
}

func (c *Cache) Stats(ctx context.Context) Stats {
	var count int64
	iter := c.redis.Scan(ctx, 0, "device:status:*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("liveness cache: stats scan failed", "error", err)
		return Stats{Reachable: false}
	}
	return Stats{OnlineDevices: count, Reachable: true}
}

// Health pings the underlying Redis client.
func (c *Cache) Health(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
