// Package httpapi implements the HTTP Ingress: the REST handlers mounted
// under /api/v1, covering device self-service (register, status, heartbeat,
// config, mqtt-credentials, telemetry submit/query) and admin operations.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/iotflow/connectivity/internal/credential"
	"github.com/iotflow/connectivity/internal/identity"
	"github.com/iotflow/connectivity/internal/liveness"
	"github.com/iotflow/connectivity/internal/pipeline"
	"github.com/iotflow/connectivity/internal/timeseries"
)

// TimeseriesQuerier is the subset of the Time-Series Adapter the HTTP
// Ingress needs for read endpoints — kept narrow so handlers depend on
// behavior, not the concrete InfluxDB-backed Adapter.
type TimeseriesQuerier interface {
	QueryLatest(ctx context.Context, deviceID int64, measurement string) (timeseries.ResultPoint, error)
	QueryRange(ctx context.Context, deviceID int64, from, to time.Time, measurement string, limit int) (*timeseries.PointIterator, error)
	QueryAggregate(ctx context.Context, deviceID int64, measurement string, from, to time.Time, window time.Duration, fn timeseries.AggregateFn) ([]timeseries.AggregateBucket, error)
	DeleteDevice(ctx context.Context, deviceID int64) error
	Health(ctx context.Context) error
}

// API bundles every dependency the handlers need. It holds no request state.
type API struct {
	Store       *credential.Store
	Auth        *identity.Authenticator
	RateLimiter *identity.RateLimiter
	Liveness    *liveness.Cache
	Pipeline    *pipeline.Service
	Timeseries  TimeseriesQuerier
	Config      Config
	Logger      *slog.Logger
}

// Config holds the MQTT broker coordinates handed back from
// GET /devices/mqtt-credentials.
type Config struct {
	MQTTBrokerHost string
	MQTTBrokerPort int
}

func NewAPI(
	store *credential.Store,
	auth *identity.Authenticator,
	rl *identity.RateLimiter,
	live *liveness.Cache,
	svc *pipeline.Service,
	ts TimeseriesQuerier,
	cfg Config,
	logger *slog.Logger,
) *API {
	return &API{
		Store:       store,
		Auth:        auth,
		RateLimiter: rl,
		Liveness:    live,
		Pipeline:    svc,
		Timeseries:  ts,
		Config:      cfg,
		Logger:      logger,
	}
}
