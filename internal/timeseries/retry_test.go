package timeseries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	require.Equal(t, maxAttempts, calls)
}

func TestWithRetry_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("unprocessable entity")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := withRetry(ctx, func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, calls, maxAttempts)
}

func TestIsTransient(t *testing.T) {
	require.True(t, isTransient(context.DeadlineExceeded))
	require.True(t, isTransient(errors.New("dial tcp: connection refused")))
	require.True(t, isTransient(errors.New("read: connection reset by peer")))
	require.True(t, isTransient(errors.New("unexpected EOF")))
	require.True(t, isTransient(errors.New("500 Internal Server Error")))
	require.True(t, isTransient(errors.New("503 Service Unavailable")))
	require.False(t, isTransient(errors.New("400 Bad Request")))
	require.False(t, isTransient(errors.New("field does not exist")))
}
