package httpapi

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/identity"
	"github.com/iotflow/connectivity/internal/liveness"
	"github.com/iotflow/connectivity/internal/pipeline"
	"github.com/iotflow/connectivity/internal/timeseries"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAPI builds an API wired against a miniredis-backed Liveness Cache
// and Authenticator/RateLimiter, and a no-op pipeline/timeseries. Store stays
// nil — handlers that reach a.Store require a live Postgres and are outside
// this package's test coverage (see DESIGN.md).
func newTestAPI(t *testing.T, adminToken string, limits identity.Limits) (*API, *liveness.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := testLogger()
	cache := liveness.New(rdb, logger)

	auth := identity.NewAuthenticator(nil, cache, time.Minute, adminToken)
	rl := identity.NewRateLimiter(cache, limits)

	writer := &fakeWriter{}
	live := &fakeLivenessUpdater{}
	batcher := pipeline.NewBatcher(writer, logger, time.Hour, 1000)
	svc := pipeline.NewService(writer, live, batcher, logger, time.Minute, 5*time.Minute)

	api := &API{
		Auth:        auth,
		RateLimiter: rl,
		Liveness:    cache,
		Pipeline:    svc,
		Timeseries:  &fakeTimeseries{},
		Config:      Config{MQTTBrokerHost: "mqtt.example.test", MQTTBrokerPort: 1883},
		Logger:      logger,
	}
	return api, cache
}

func defaultLimits() identity.Limits {
	return identity.Limits{Register: 5, Telemetry: 100, Heartbeat: 30, Default: 60, Window: time.Minute}
}

// fakeWriter implements pipeline.TimeSeriesWriter.
type fakeWriter struct {
	writeErr error
	written  []pipeline.Point
}

func (f *fakeWriter) Write(_ context.Context, _ int64, points []pipeline.Point) ([]string, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.written = append(f.written, points...)
	return nil, nil
}

func (f *fakeWriter) PriorKind(_ int64, _ string) (pipeline.ValueKind, bool) {
	return 0, false
}

// fakeLivenessUpdater implements pipeline.LivenessUpdater.
type fakeLivenessUpdater struct {
	calls int
}

func (f *fakeLivenessUpdater) SetOnline(_ context.Context, _ int64, _ time.Duration, _ time.Time) {
	f.calls++
}

// fakeTimeseries implements TimeseriesQuerier. QueryRange has no seam for a
// fake *timeseries.PointIterator (it wraps a concrete InfluxDB SDK result
// type with no exported constructor), so it only ever returns an error here;
// the success path for range queries is outside this package's test
// coverage (see DESIGN.md).
type fakeTimeseries struct {
	latest     timeseries.ResultPoint
	latestErr  error
	rangeErr   error
	aggregate  []timeseries.AggregateBucket
	aggErr     error
	deleteErr  error
}

func (f *fakeTimeseries) QueryLatest(_ context.Context, _ int64, _ string) (timeseries.ResultPoint, error) {
	return f.latest, f.latestErr
}

func (f *fakeTimeseries) QueryRange(_ context.Context, _ int64, _, _ time.Time, _ string, _ int) (*timeseries.PointIterator, error) {
	if f.rangeErr != nil {
		return nil, f.rangeErr
	}
	return nil, apierr.Internal(context.DeadlineExceeded)
}

func (f *fakeTimeseries) QueryAggregate(_ context.Context, _ int64, _ string, _, _ time.Time, _ time.Duration, _ timeseries.AggregateFn) ([]timeseries.AggregateBucket, error) {
	return f.aggregate, f.aggErr
}

func (f *fakeTimeseries) DeleteDevice(_ context.Context, _ int64) error {
	return f.deleteErr
}

func (f *fakeTimeseries) Health(_ context.Context) error {
	return nil
}
