package httpapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/iotflow/connectivity/internal/identity"
)

// Mount wires every IoTFlow route onto r. r is expected to already carry the
// ambient chain (security headers, request id, logging, metrics, recoverer,
// CORS, timeout) — Mount adds only the domain-specific links (sanitize is
// applied inside httpserver.Decode; rate-limit and auth are per-route).
//
// Auth runs before RateLimit for every device-scoped group below so
// RateLimit can key its bucket on the resolved device_id instead of the
// caller's IP — otherwise every device behind the same NAT/proxy would share
// one bucket. Registration has no identity to resolve yet, so it stays
// IP-keyed.
func (a *API) Mount(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.With(a.RateLimit(identity.ScopeRegister)).Post("/register", a.HandleRegister)

		r.Group(func(r chi.Router) {
			r.Use(a.DeviceAuth)
			r.Use(a.RateLimit(identity.ScopeDefault))
			r.Get("/status", a.HandleStatus)
			r.Get("/config", a.HandleGetConfig)
			r.Put("/config", a.HandlePutConfig)
			r.Get("/mqtt-credentials", a.HandleMQTTCredentials)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.DeviceAuth)
			r.Use(a.RateLimit(identity.ScopeHeartbeat))
			r.Post("/heartbeat", a.HandleHeartbeat)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.DeviceAuth)
			r.Use(a.RateLimit(identity.ScopeTelemetry))
			r.Post("/telemetry", a.HandleTelemetrySubmit)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.DeviceOrAdminAuth)
		r.Use(a.RateLimit(identity.ScopeDefault))
		r.Get("/telemetry/{id}", a.HandleTelemetryRange)
		r.Get("/telemetry/{id}/latest", a.HandleTelemetryLatest)
		r.Get("/telemetry/{id}/aggregated", a.HandleTelemetryAggregated)
	})

	r.Route("/admin/devices", func(r chi.Router) {
		r.Use(a.AdminAuth)
		r.Get("/", a.HandleAdminList)
		r.Get("/{id}", a.HandleAdminGet)
		r.Put("/{id}", a.HandleAdminUpdate)
		r.Delete("/{id}", a.HandleAdminDelete)
		r.Patch("/{id}/status", a.HandleAdminStatusPatch)
		r.Get("/{id}/cache", a.HandleAdminCacheInspect)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.AdminAuth)
		r.Get("/stats", a.HandleAdminStats)
		r.Post("/cache/flush", a.HandleAdminCacheFlush)
	})
}
