package identity

import (
	"context"
	"time"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/liveness"
	"github.com/iotflow/connectivity/internal/obs"
)

// Scope names a rate-limit bucket.
type Scope string

const (
	ScopeRegister  Scope = "register"
	ScopeTelemetry Scope = "telemetry"
	ScopeHeartbeat Scope = "heartbeat"
	ScopeDefault   Scope = "default"
)

// Limits holds the per-scope request ceiling and window, loaded from config.
type Limits struct {
	Register  int
	Telemetry int
	Heartbeat int
	Default   int
	Window    time.Duration
}

// RateLimiter applies per-scope fixed-window limits. Where it runs relative
// to authentication is decided by the caller: device registration is limited
// by caller IP with no auth ahead of it, while the device-authenticated HTTP
// routes and MQTT dispatch check it only after the api_key has resolved, so
// attempts with unknown keys on those paths are not throttled.
type RateLimiter struct {
	cache  *liveness.Cache
	limits Limits
}

func NewRateLimiter(cache *liveness.Cache, limits Limits) *RateLimiter {
	return &RateLimiter{cache: cache, limits: limits}
}

// Check applies the scope's configured limit to key (typically the caller's
// IP for register, and the device id for telemetry/heartbeat).
func (r *RateLimiter) Check(ctx context.Context, scope Scope, key string) error {
	result, err := r.CheckWithResult(ctx, scope, key)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return apierr.RateLimited("rate limit exceeded for %s, retry at %s", scope, result.ResetAt.Format(time.RFC3339))
	}
	return nil
}

// CheckWithResult runs the same check as Check but always returns the
// limiter's bucket state, so callers can set X-RateLimit-* response headers
// regardless of the outcome.
func (r *RateLimiter) CheckWithResult(ctx context.Context, scope Scope, key string) (liveness.RateLimitResult, error) {
	limit := r.limitFor(scope)
	result := r.cache.RateLimit(ctx, string(scope), key, limit, r.limits.Window)
	if !result.Allowed {
		obs.RateLimitRejectionsTotal.WithLabelValues(string(scope)).Inc()
	}
	return result, nil
}

// LimitFor exposes the configured ceiling for scope, for callers rendering
// X-RateLimit-Limit response headers.
func (r *RateLimiter) LimitFor(scope Scope) int {
	return r.limitFor(scope)
}

func (r *RateLimiter) limitFor(scope Scope) int {
	switch scope {
	case ScopeRegister:
		return r.limits.Register
	case ScopeTelemetry:
		return r.limits.Telemetry
	case ScopeHeartbeat:
		return r.limits.Heartbeat
	default:
		return r.limits.Default
	}
}
