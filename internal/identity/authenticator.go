// Package identity is the Identity & Authorization component: device api_key
// resolution (with a short-lived cache), admin bearer authorization, and
// per-scope rate limiting.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/credential"
	"github.com/iotflow/connectivity/internal/liveness"
)

const adminTokenBcryptCost = 10

// hashForBcrypt pre-hashes an arbitrary-length token with SHA-256 to stay
// within bcrypt's 72-byte input limit.
func hashForBcrypt(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return []byte(hex.EncodeToString(h[:]))
}

// Identity is the resolved caller for an authenticated device request.
type Identity struct {
	DeviceID    int64
	AdminStatus credential.AdminStatus
}

// Authenticator resolves api_keys to device identities, caching the lookup
// by key prefix to amortize Postgres round-trips under MQTT burst load.
type Authenticator struct {
	store        *credential.Store
	cache        *liveness.Cache
	cacheTTL     time.Duration
	adminHash    []byte
	adminEnabled bool
}

// NewAuthenticator hashes adminToken with bcrypt once at construction, so the
// plaintext configured token never sits in memory for the process lifetime
// and every AuthorizeAdmin call compares against the hash, not the raw value.
// An empty adminToken disables admin auth entirely.
func NewAuthenticator(store *credential.Store, cache *liveness.Cache, cacheTTL time.Duration, adminToken string) *Authenticator {
	a := &Authenticator{store: store, cache: cache, cacheTTL: cacheTTL}
	if adminToken == "" {
		return a
	}
	hash, err := bcrypt.GenerateFromPassword(hashForBcrypt(adminToken), adminTokenBcryptCost)
	if err != nil {
		// The input is always a 64-byte hex digest (under bcrypt's 72-byte
		// limit) and adminTokenBcryptCost is a fixed valid constant; on any
		// error admin auth stays disabled.
		return a
	}
	a.adminHash = hash
	a.adminEnabled = true
	return a
}

// Resolve authenticates a raw api_key. It rejects with AuthFailed if the key
// is unknown or the device has been administratively deactivated. A device
// in "maintenance" still resolves — callers on a scope that forbids
// maintenance access (telemetry write) must check Identity.AdminStatus
// themselves, since heartbeat and config reads remain allowed in that state.
func (a *Authenticator) Resolve(ctx context.Context, apiKey string) (Identity, error) {
	if apiKey == "" {
		return Identity{}, apierr.AuthRequired("missing api key")
	}

	prefix := liveness.KeyPrefix(apiKey)
	if entry, ok := a.cache.GetAuth(ctx, prefix); ok && entry.APIKey == apiKey {
		if entry.AdminStatus == string(credential.StatusInactive) {
			return Identity{}, apierr.AuthFailed("device is not active")
		}
		return Identity{DeviceID: entry.DeviceID, AdminStatus: credential.AdminStatus(entry.AdminStatus)}, nil
	}

	device, err := a.store.GetByApiKey(ctx, apiKey)
	if err != nil {
		if ae, ok := apierr.As(err); ok && ae.Kind == apierr.KindNotFound {
			return Identity{}, apierr.AuthFailed("invalid api key")
		}
		return Identity{}, err
	}

	a.cache.SetAuth(ctx, prefix, liveness.AuthEntry{
		DeviceID:    device.ID,
		AdminStatus: string(device.AdminStatus),
		APIKey:      device.APIKey,
	}, a.cacheTTL)

	if device.AdminStatus == credential.StatusInactive {
		return Identity{}, apierr.AuthFailed("device is not active")
	}

	return Identity{DeviceID: device.ID, AdminStatus: device.AdminStatus}, nil
}

// RequireActive rejects a non-active identity — used on the telemetry write
// path, where "maintenance" devices may authenticate but not publish data.
func RequireActive(id Identity) error {
	if id.AdminStatus != credential.StatusActive {
		return apierr.AuthFailed("device is in %s state, telemetry writes are not permitted", id.AdminStatus)
	}
	return nil
}

// InvalidateDevice must be called whenever admin operations change a
// device's api_key or admin_status, so the next Resolve call re-reads
// Postgres instead of serving a stale cache entry.
func (a *Authenticator) InvalidateDevice(ctx context.Context, apiKey string) {
	a.cache.InvalidateAuth(ctx, liveness.KeyPrefix(apiKey))
}

// AuthorizeAdmin checks an admin bearer token against the bcrypt hash
// computed at startup. bcrypt.CompareHashAndPassword runs in constant time
// with respect to the candidate token.
func (a *Authenticator) AuthorizeAdmin(token string) error {
	if !a.adminEnabled {
		return apierr.AuthFailed("admin authentication is not configured")
	}
	if token == "" {
		return apierr.AuthRequired("missing admin token")
	}
	if err := bcrypt.CompareHashAndPassword(a.adminHash, hashForBcrypt(token)); err != nil {
		return apierr.AuthFailed("invalid admin token")
	}
	return nil
}
