package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iotflow/connectivity/internal/health"
	"github.com/iotflow/connectivity/internal/obs"
)

// ServerConfig holds the parameters NewServer needs.
type ServerConfig struct {
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
}

// Server wraps the chi router, the health-check registry, and the
// Prometheus registry behind a single http.Handler.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // /api/v1, for httpapi.Mount
	Logger    *slog.Logger
	Metrics   *prometheus.Registry
	checkers  []health.Checker
	startedAt time.Time

	deviceCount          func(ctx context.Context) (int, error)
	recentTelemetryCount func(ctx context.Context) (int64, error)
}

// NewServer builds the chi.Mux with the full middleware chain composed once
// as explicit data (SecurityHeaders → RequestID → Tracing → Logger →
// Metrics → Recoverer → CORS → Timeout), mounts the unauthenticated
// health/metrics endpoints, and opens the /api/v1 sub-router for domain
// handlers to mount onto via Server.APIRouter. checkers drives the
// composite report served by /readyz and /health; /healthz does not run them.
// deviceCount and recentTelemetryCount feed GET /health?detailed=true's
// extra gauges; either may be nil to omit that gauge.
func NewServer(cfg ServerConfig, logger *slog.Logger, metricsReg *prometheus.Registry, checkers []health.Checker, deviceCount func(context.Context) (int, error), recentTelemetryCount func(context.Context) (int64, error)) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	s := &Server{
		Router:               chi.NewRouter(),
		Logger:               logger,
		Metrics:              metricsReg,
		checkers:             checkers,
		startedAt:            time.Now(),
		deviceCount:          deviceCount,
		recentTelemetryCount: recentTelemetryCount,
	}

	chain := []func(http.Handler) http.Handler{
		SecurityHeaders,
		RequestID,
		obs.TracingMiddleware(),
		Logger(logger),
		Metrics,
		chimw.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "Authorization", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		Timeout(cfg.RequestTimeout),
	}
	for _, mw := range chain {
		s.Router.Use(mw)
	}

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get("/health", s.handleHealth)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/api/v1", func(r chi.Router) {
		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// handleHealthz is the container-orchestration liveness probe: the process
// is up, nothing more.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz is the container-orchestration readiness probe: aliases the
// composite health report, since "ready to serve" and "dependencies
// reachable" are the same question here.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), s.checkers)
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	Respond(w, status, report)
}

// handleHealth implements GET /health[?detailed=true].
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), s.checkers)
	httpStatus := http.StatusOK
	if report.Status == "down" {
		httpStatus = http.StatusServiceUnavailable
	}

	if r.URL.Query().Get("detailed") != "true" {
		Respond(w, httpStatus, report)
		return
	}

	extra := map[string]any{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}

	if s.deviceCount != nil {
		if n, err := s.deviceCount(r.Context()); err != nil {
			s.Logger.Warn("detailed health: device count failed", "error", err)
		} else {
			extra["device_count"] = n
		}
	}
	if s.recentTelemetryCount != nil {
		if n, err := s.recentTelemetryCount(r.Context()); err != nil {
			s.Logger.Warn("detailed health: recent telemetry count failed", "error", err)
		} else {
			extra["telemetry_points_last_hour"] = n
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	extra["goroutines"] = runtime.NumGoroutine()
	extra["heap_alloc_bytes"] = mem.HeapAlloc

	Respond(w, httpStatus, health.DetailedReport{
		Report: report,
		Extra:  extra,
	})
}
