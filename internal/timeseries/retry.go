package timeseries

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

const (
	retryBase    = 100 * time.Millisecond
	retryCeiling = 5 * time.Second
	retryFactor  = 2
	maxAttempts  = 4
)

// withRetry runs fn with exponential backoff (base 100ms, factor 2, ceiling
// 5s, max 4 attempts) on transient failures. No third-party backoff library
// available to this project returns a typed transient/permanent
// classification suited to this shape, so the loop is hand-rolled — see
// DESIGN.md.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := retryBase
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) || attempt == maxAttempts {
			return lastErr
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= retryFactor
		if delay > retryCeiling {
			delay = retryCeiling
		}
	}

	return lastErr
}

// isTransient classifies an InfluxDB write error as retryable: context
// deadline, connection refused/reset, or a 5xx response from the write API.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "EOF") {
		return true
	}

	return strings.Contains(msg, "Server Error") || strings.Contains(msg, "Service Unavailable") || strings.Contains(msg, "Gateway Timeout")
}
