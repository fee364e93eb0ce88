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
	"github.com/iotflow/connectivity/internal/credential"
	"github.com/iotflow/connectivity/internal/liveness"
)

func newTestAuthenticator(t *testing.T, adminToken string) (*Authenticator, *liveness.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := liveness.New(rdb, logger)
	return NewAuthenticator(nil, cache, time.Minute, adminToken), cache
}

func TestResolve_EmptyAPIKeyIsAuthRequired(t *testing.T) {
	auth, _ := newTestAuthenticator(t, "")
	_, err := auth.Resolve(context.Background(), "")
	ae, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindAuthRequired, ae.Kind)
}

func TestResolve_CacheHitActiveDevice(t *testing.T) {
	auth, cache := newTestAuthenticator(t, "")
	ctx := context.Background()
	cache.SetAuth(ctx, liveness.KeyPrefix("abcd1234secret"), liveness.AuthEntry{
		DeviceID:    42,
		AdminStatus: string(credential.StatusActive),
		APIKey:      "abcd1234secret",
	}, time.Minute)

	id, err := auth.Resolve(ctx, "abcd1234secret")
	require.NoError(t, err)
	require.Equal(t, int64(42), id.DeviceID)
	require.Equal(t, credential.StatusActive, id.AdminStatus)
}

func TestResolve_CacheHitMaintenanceDeviceStillResolves(t *testing.T) {
	auth, cache := newTestAuthenticator(t, "")
	ctx := context.Background()
	cache.SetAuth(ctx, liveness.KeyPrefix("abcd1234secret"), liveness.AuthEntry{
		DeviceID:    42,
		AdminStatus: string(credential.StatusMaintenance),
		APIKey:      "abcd1234secret",
	}, time.Minute)

	id, err := auth.Resolve(ctx, "abcd1234secret")
	require.NoError(t, err)
	require.Equal(t, credential.StatusMaintenance, id.AdminStatus)
}

func TestResolve_CacheHitInactiveDeviceRejected(t *testing.T) {
	auth, cache := newTestAuthenticator(t, "")
	ctx := context.Background()
	cache.SetAuth(ctx, liveness.KeyPrefix("abcd1234secret"), liveness.AuthEntry{
		DeviceID:    42,
		AdminStatus: string(credential.StatusInactive),
		APIKey:      "abcd1234secret",
	}, time.Minute)

	_, err := auth.Resolve(ctx, "abcd1234secret")
	ae, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindAuthFailed, ae.Kind)
}

func TestRequireActive(t *testing.T) {
	require.NoError(t, RequireActive(Identity{AdminStatus: credential.StatusActive}))

	err := RequireActive(Identity{AdminStatus: credential.StatusMaintenance})
	ae, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindAuthFailed, ae.Kind)
}

func TestAuthorizeAdmin_NotConfigured(t *testing.T) {
	auth, _ := newTestAuthenticator(t, "")
	err := auth.AuthorizeAdmin("anything")
	ae, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindAuthFailed, ae.Kind)
}

func TestAuthorizeAdmin_CorrectToken(t *testing.T) {
	auth, _ := newTestAuthenticator(t, "supersecrettoken")
	require.NoError(t, auth.AuthorizeAdmin("supersecrettoken"))
}

func TestAuthorizeAdmin_WrongToken(t *testing.T) {
	auth, _ := newTestAuthenticator(t, "supersecrettoken")
	err := auth.AuthorizeAdmin("wrong")
	ae, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindAuthFailed, ae.Kind)
}

func TestAuthorizeAdmin_EmptyTokenIsAuthRequired(t *testing.T) {
	auth, _ := newTestAuthenticator(t, "supersecrettoken")
	err := auth.AuthorizeAdmin("")
	ae, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindAuthRequired, ae.Kind)
}
