// Package timeseries is the Time-Series Adapter: it writes normalized
// telemetry points to InfluxDB and serves latest/range/aggregate queries
// back out.
package timeseries

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/obs"
	"github.com/iotflow/connectivity/internal/pipeline"
)

// pathKey identifies a (device, measurement) pair for the in-process
// schema-conflict cache.
type pathKey struct {
	deviceID    int64
	measurement string
}

// Adapter wraps the InfluxDB client. It is the only writer of telemetry
// points, so the in-process type cache below needs no external
// synchronization beyond its own mutex.
type Adapter struct {
	client influxdb2.Client
	org    string
	bucket string

	mu    sync.Mutex
	types map[pathKey]pipeline.ValueKind
}

// NewAdapter builds the InfluxDB client with its HTTP transport wrapped for
// OTel span propagation, so outgoing writes/queries join the request trace
// that triggered them.
func NewAdapter(url, token, org, bucket string) *Adapter {
	opts := influxdb2.DefaultOptions().SetHTTPClient(&http.Client{
		Transport: obs.HTTPTransport(nil),
	})
	client := influxdb2.NewClientWithOptions(url, token, opts)
	return &Adapter{
		client: client,
		org:    org,
		bucket: bucket,
		types:  make(map[pathKey]pipeline.ValueKind),
	}
}

func (a *Adapter) Close() {
	a.client.Close()
}

func measurementName(deviceID int64) string {
	return fmt.Sprintf("device_%d", deviceID)
}

// PriorKind implements pipeline.TimeSeriesWriter: it reports the Value.Kind
// previously established for a (device, measurement) path, if any.
func (a *Adapter) PriorKind(deviceID int64, measurement string) (pipeline.ValueKind, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kind, ok := a.types[pathKey{deviceID, measurement}]
	return kind, ok
}

func (a *Adapter) recordKind(deviceID int64, measurement string, kind pipeline.ValueKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.types[pathKey{deviceID, measurement}] = kind
}

// Write persists a device's batch of points, retrying transient failures per
// the policy in retry.go. Points whose measurement conflicts with a
// previously-established type (e.g. a string write on a float path) are
// reported in rejectedMeasurements rather than aborting the whole batch,
// so the caller can surface a partial-write result instead of failing outright.
func (a *Adapter) Write(ctx context.Context, deviceID int64, points []pipeline.Point) (rejectedMeasurements []string, err error) {
	if len(points) == 0 {
		return nil, nil
	}

	writeAPI := a.client.WriteAPIBlocking(a.org, a.bucket)

	var toWrite []*write.Point
	for _, p := range points {
		if kind, ok := a.PriorKind(deviceID, p.Measurement); ok && kind != p.Value.Kind {
			if !compatibleKinds(kind, p.Value) {
				rejectedMeasurements = append(rejectedMeasurements, p.Measurement)
				continue
			}
			// An int on an established float path is written as a float, so
			// the path's field type stays float.
			f, _ := p.Value.AsFloat64()
			p.Value = pipeline.NewFloat(f)
		}

		tags := map[string]string{
			"device_id":   fmt.Sprintf("%d", deviceID),
			"measurement": p.Measurement,
		}
		fields := map[string]any{"value": fieldValue(p.Value)}
		toWrite = append(toWrite, influxdb2.NewPoint(measurementName(deviceID), tags, fields, p.Timestamp))
		a.recordKind(deviceID, p.Measurement, p.Value.Kind)
	}

	if len(toWrite) == 0 {
		return rejectedMeasurements, nil
	}

	writeErr := withRetry(ctx, func(ctx context.Context) error {
		return writeAPI.WritePoint(ctx, toWrite...)
	})
	if writeErr != nil {
		return nil, fmt.Errorf("writing %d points for device %d: %w", len(toWrite), deviceID, writeErr)
	}

	return rejectedMeasurements, nil
}

// compatibleKinds allows an int write to land on an established float path;
// every other cross-kind write is a permanent rejection.
func compatibleKinds(established pipeline.ValueKind, v pipeline.Value) bool {
	return established == pipeline.VFloat && v.Kind == pipeline.VInt
}

func fieldValue(v pipeline.Value) any {
	switch v.Kind {
	case pipeline.VInt:
		return v.I
	case pipeline.VFloat:
		return v.F
	case pipeline.VBool:
		return v.B
	default:
		return v.S
	}
}

// DeleteDevice removes all of a device's data from the bucket's retention.
func (a *Adapter) DeleteDevice(ctx context.Context, deviceID int64) error {
	deleteAPI := a.client.DeleteAPI()
	start := time.Unix(0, 0)
	stop := time.Now().Add(24 * time.Hour)
	predicate := fmt.Sprintf(`_measurement="%s"`, measurementName(deviceID))
	if err := deleteAPI.DeleteWithName(ctx, a.org, a.bucket, start, stop, predicate); err != nil {
		return apierr.Internal(fmt.Errorf("deleting device %d time series: %w", deviceID, err))
	}
	return nil
}

// Health checks connectivity to the InfluxDB server.
func (a *Adapter) Health(ctx context.Context) error {
	ready, err := a.client.Ready(ctx)
	if err != nil {
		return fmt.Errorf("checking influx readiness: %w", err)
	}
	if !ready {
		return fmt.Errorf("influx reports not ready")
	}
	return nil
}
