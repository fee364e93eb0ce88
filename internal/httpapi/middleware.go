package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/httpserver"
	"github.com/iotflow/connectivity/internal/identity"
)

type ctxKey string

const identityKey ctxKey = "iotflow.identity"

// identityFromContext extracts the resolved device Identity, if any.
func identityFromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityKey).(identity.Identity)
	return id, ok
}

// DeviceAuth resolves the X-API-Key header into an identity.Identity and
// stores it on the request context. It does not enforce admin_status beyond
// what Authenticator.Resolve already rejects (inactive); route handlers that
// require "active" (telemetry writes) call identity.RequireActive themselves.
func (a *API) DeviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		id, err := a.Auth.Resolve(r.Context(), apiKey)
		if err != nil {
			httpserver.RespondAPIError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuth checks the "Authorization: admin <token>" header.
func (a *API) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "admin "
		if !strings.HasPrefix(header, prefix) {
			httpserver.RespondAPIError(w, r, apierr.AuthRequired("missing admin bearer token"))
			return
		}
		token := strings.TrimPrefix(header, prefix)
		if err := a.Auth.AuthorizeAdmin(token); err != nil {
			httpserver.RespondAPIError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit runs the identity.RateLimiter for scope. When a device identity
// has already been resolved into the request context (DeviceAuth or
// DeviceOrAdminAuth ran first in the chain), it keys on that device_id so
// every device gets its own telemetry/heartbeat/default bucket regardless of
// how many devices share a NAT or proxy IP. Routes with no identity ahead of
// them in the chain (registration; an admin-authenticated telemetry read)
// key on the caller's IP instead. It always sets X-RateLimit-* headers.
func (a *API) RateLimit(scope identity.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if id, ok := identityFromContext(r.Context()); ok {
				key = strconv.FormatInt(id.DeviceID, 10)
			}

			result, err := a.RateLimiter.CheckWithResult(r.Context(), scope, key)
			if err != nil {
				httpserver.RespondAPIError(w, r, err)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(a.RateLimiter.LimitFor(scope)))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				httpserver.RespondAPIError(w, r, apierr.RateLimited("rate limit exceeded for scope %s", scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DeviceOrAdminAuth accepts either an admin bearer token or a device
// X-API-Key. It never rejects for missing device auth when an admin token is
// present; telemetry-query handlers that receive no identity in context must
// treat the request as admin-scoped (any device id permitted) and handlers
// that do receive one must check it matches the requested path device id.
func (a *API) DeviceOrAdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "admin ") {
			token := strings.TrimPrefix(header, "admin ")
			if err := a.Auth.AuthorizeAdmin(token); err != nil {
				httpserver.RespondAPIError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		id, err := a.Auth.Resolve(r.Context(), apiKey)
		if err != nil {
			httpserver.RespondAPIError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
