package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/liveness"
)

func newTestRateLimiter(t *testing.T, limits Limits) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRateLimiter(liveness.New(rdb, logger), limits)
}

func TestLimitFor(t *testing.T) {
	rl := newTestRateLimiter(t, Limits{Register: 5, Telemetry: 100, Heartbeat: 30, Default: 60, Window: time.Minute})
	require.Equal(t, 5, rl.LimitFor(ScopeRegister))
	require.Equal(t, 100, rl.LimitFor(ScopeTelemetry))
	require.Equal(t, 30, rl.LimitFor(ScopeHeartbeat))
	require.Equal(t, 60, rl.LimitFor(ScopeDefault))
	require.Equal(t, 60, rl.LimitFor(Scope("unknown")))
}

func TestCheck_AllowsThenRejects(t *testing.T) {
	rl := newTestRateLimiter(t, Limits{Register: 2, Window: time.Minute})
	ctx := context.Background()

	require.NoError(t, rl.Check(ctx, ScopeRegister, "1.2.3.4"))
	require.NoError(t, rl.Check(ctx, ScopeRegister, "1.2.3.4"))

	err := rl.Check(ctx, ScopeRegister, "1.2.3.4")
	ae, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindRateLimited, ae.Kind)
}

func TestCheckWithResult_ReportsRemaining(t *testing.T) {
	rl := newTestRateLimiter(t, Limits{Telemetry: 10, Window: time.Minute})
	ctx := context.Background()

	result, err := rl.CheckWithResult(ctx, ScopeTelemetry, "device-1")
	require.NoError(t, err)
	require.True(t, result.Allowed)
	require.Equal(t, 9, result.Remaining)
}
