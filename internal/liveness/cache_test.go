package liveness

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(rdb, logger), mr
}

func TestSetOnlineAndGetStatus(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	seenAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	c.SetOnline(ctx, 42, time.Minute, seenAt)

	status := c.GetStatus(ctx, 42)
	require.Equal(t, "cache", status.Source)
	require.True(t, status.IsOnline)
	require.NotNil(t, status.LastSeen)
	require.True(t, status.LastSeen.Equal(seenAt))
}

func TestGetStatus_UnknownDeviceIsOffline(t *testing.T) {
	c, _ := newTestCache(t)
	status := c.GetStatus(context.Background(), 999)
	require.Equal(t, "cache", status.Source)
	require.False(t, status.IsOnline)
	require.Nil(t, status.LastSeen)
}

func TestSetOnline_StatusExpiresAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.SetOnline(ctx, 1, 5*time.Second, time.Now())

	mr.FastForward(6 * time.Second)

	status := c.GetStatus(ctx, 1)
	require.False(t, status.IsOnline, "status should have expired")
	require.NotNil(t, status.LastSeen, "last_seen has no expiry and should survive")
}

func TestClearStatus(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.SetOnline(ctx, 5, time.Minute, time.Now())

	c.ClearStatus(ctx, 5)

	status := c.GetStatus(ctx, 5)
	require.False(t, status.IsOnline)
}

func TestClearAll_RemovesLivenessAuthAndRateLimitKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.SetOnline(ctx, 1, time.Minute, time.Now())
	c.SetAuth(ctx, "abcd1234", AuthEntry{DeviceID: 1}, time.Minute)
	c.RateLimit(ctx, "telemetry", "1", 10, time.Minute)

	require.NoError(t, c.ClearAll(ctx))

	require.False(t, c.GetStatus(ctx, 1).IsOnline)
	_, ok := c.GetAuth(ctx, "abcd1234")
	require.False(t, ok)
	result := c.RateLimit(ctx, "telemetry", "1", 10, time.Minute)
	require.Equal(t, 9, result.Remaining, "rate limit counter should have reset")
}

func TestStats_ReachableAndCountsOnlineDevices(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.SetOnline(ctx, 1, time.Minute, time.Now())
	c.SetOnline(ctx, 2, time.Minute, time.Now())

	stats := c.Stats(ctx)
	require.True(t, stats.Reachable)
	require.Equal(t, int64(2), stats.OnlineDevices)
}

func TestHealth_UnreachableRedisReturnsError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	c := New(rdb, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.Error(t, c.Health(ctx))
}
