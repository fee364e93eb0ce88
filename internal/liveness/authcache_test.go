package liveness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetAuthAndGetAuth(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	entry := AuthEntry{DeviceID: 7, AdminStatus: "active", APIKey: "abcd1234secret"}

	c.SetAuth(ctx, KeyPrefix(entry.APIKey), entry, time.Minute)

	got, ok := c.GetAuth(ctx, KeyPrefix(entry.APIKey))
	require.True(t, ok)
	require.Equal(t, entry, got)
}

func TestGetAuth_MissIsFalse(t *testing.T) {
	c, _ := newTestCache(t)
	_, ok := c.GetAuth(context.Background(), "nosuchke")
	require.False(t, ok)
}

func TestInvalidateAuth(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	entry := AuthEntry{DeviceID: 7, AdminStatus: "active", APIKey: "abcd1234secret"}
	c.SetAuth(ctx, KeyPrefix(entry.APIKey), entry, time.Minute)

	c.InvalidateAuth(ctx, KeyPrefix(entry.APIKey))

	_, ok := c.GetAuth(ctx, KeyPrefix(entry.APIKey))
	require.False(t, ok)
}

func TestKeyPrefix(t *testing.T) {
	require.Equal(t, "abcd1234", KeyPrefix("abcd1234567890"))
	require.Equal(t, "short", KeyPrefix("short"))
	require.Equal(t, "", KeyPrefix(""))
}
