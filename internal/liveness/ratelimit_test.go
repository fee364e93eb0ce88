package liveness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimit_AllowsUpToLimit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := c.RateLimit(ctx, "telemetry", "device-1", 3, time.Minute)
		require.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.RateLimit(ctx, "telemetry", "device-1", 3, time.Minute)
	}

	result := c.RateLimit(ctx, "telemetry", "device-1", 3, time.Minute)
	require.False(t, result.Allowed)
	require.Equal(t, 0, result.Remaining)
}

func TestRateLimit_WindowResetsCounter(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.RateLimit(ctx, "telemetry", "device-1", 3, time.Second)
	}
	require.False(t, c.RateLimit(ctx, "telemetry", "device-1", 3, time.Second).Allowed)

	mr.FastForward(2 * time.Second)

	require.True(t, c.RateLimit(ctx, "telemetry", "device-1", 3, time.Second).Allowed)
}

func TestRateLimit_ScopesAreIndependent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.RateLimit(ctx, "telemetry", "device-1", 3, time.Minute)
	}
	require.False(t, c.RateLimit(ctx, "telemetry", "device-1", 3, time.Minute).Allowed)

	result := c.RateLimit(ctx, "heartbeat", "device-1", 3, time.Minute)
	require.True(t, result.Allowed, "a different scope must have its own counter")
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.RateLimit(ctx, "telemetry", "device-1", 3, time.Minute)
	}
	require.False(t, c.RateLimit(ctx, "telemetry", "device-1", 3, time.Minute).Allowed)

	result := c.RateLimit(ctx, "telemetry", "device-2", 3, time.Minute)
	require.True(t, result.Allowed, "a different key must have its own counter")
}
