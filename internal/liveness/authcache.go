package liveness

import (
	"context"
	"encoding/json"
	"time"
)

// AuthEntry is the cached result of a credential lookup, keyed by the first 8
// characters of an api_key. It amortizes the Postgres round-trip under bursty
// MQTT traffic; admin operations that change a device's status must call
// InvalidateAuth to avoid serving stale authorization decisions.
type AuthEntry struct {
	DeviceID    int64  `json:"device_id"`
	AdminStatus string `json:"admin_status"`
	APIKey      string `json:"api_key"`
}

func authKey(keyPrefix string) string { return "authcache:" + keyPrefix }

// GetAuth returns a cached AuthEntry, or ok=false on cache miss or error.
func (c *Cache) GetAuth(ctx context.Context, keyPrefix string) (AuthEntry, bool) {
	raw, err := c.redis.Get(ctx, authKey(keyPrefix)).Result()
	if err != nil {
		return AuthEntry{}, false
	}
	var e AuthEntry
	if jsonErr := json.Unmarshal([]byte(raw), &e); jsonErr != nil {
		return AuthEntry{}, false
	}
	return e, true
}

// SetAuth caches an AuthEntry for ttl (typically 30s).
func (c *Cache) SetAuth(ctx context.Context, keyPrefix string, entry AuthEntry, ttl time.Duration) {
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("liveness cache: marshaling auth entry failed", "error", err)
		return
	}
	if err := c.redis.Set(ctx, authKey(keyPrefix), raw, ttl).Err(); err != nil {
		c.logger.Warn("liveness cache: caching auth entry failed", "error", err)
	}
}

// InvalidateAuth evicts a cached auth entry. Called on any admin operation
// that changes a device's admin_status or api_key.
func (c *Cache) InvalidateAuth(ctx context.Context, keyPrefix string) {
	if err := c.redis.Del(ctx, authKey(keyPrefix)).Err(); err != nil {
		c.logger.Warn("liveness cache: invalidating auth entry failed", "key_prefix", keyPrefix, "error", err)
	}
}

func KeyPrefix(apiKey string) string {
	if len(apiKey) <= 8 {
		return apiKey
	}
	return apiKey[:8]
}
