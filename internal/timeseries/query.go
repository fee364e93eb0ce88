package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/pipeline"
)

// ResultPoint is a single row returned from a query.
type ResultPoint struct {
	Measurement string
	Value       pipeline.Value
	Timestamp   time.Time
}

// AggregateFn names one of the supported window aggregation functions.
type AggregateFn string

const (
	AggMean  AggregateFn = "mean"
	AggMin   AggregateFn = "min"
	AggMax   AggregateFn = "max"
	AggSum   AggregateFn = "sum"
	AggCount AggregateFn = "count"
)

// AggregateBucket is one (bucket_start, value) pair from QueryAggregate.
type AggregateBucket struct {
	BucketStart time.Time
	Value       float64
}

// QueryLatest returns the most recent point for a device, optionally
// restricted to one measurement.
func (a *Adapter) QueryLatest(ctx context.Context, deviceID int64, measurement string) (ResultPoint, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -30d)
  |> filter(fn: (r) => r._measurement == %q)
  %s
  |> filter(fn: (r) => r._field == "value")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: 1)`,
		a.bucket, measurementName(deviceID), measurementFilter(measurement))

	result, err := a.client.QueryAPI(a.org).Query(ctx, flux)
	if err != nil {
		return ResultPoint{}, apierr.Internal(fmt.Errorf("querying latest point for device %d: %w", deviceID, err))
	}
	defer result.Close()

	if !result.Next() {
		return ResultPoint{}, apierr.NotFound("no telemetry for device %d", deviceID)
	}

	return rowToPoint(result.Record().Time(), result.Record().ValueByKey("measurement"), result.Record().Value()), nil
}

// QueryRange returns a context-bound iterator over points in [from, to),
// per the Design Notes' "generator-style iteration" redesign: the caller
// drives Next()/Close() and the adapter tears down the underlying Influx
// query result on either path.
func (a *Adapter) QueryRange(ctx context.Context, deviceID int64, from, to time.Time, measurement string, limit int) (*PointIterator, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  %s
  |> filter(fn: (r) => r._field == "value")
  |> sort(columns: ["_time"])
  |> limit(n: %d)`,
		a.bucket, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
		measurementName(deviceID), measurementFilter(measurement), limit)

	result, err := a.client.QueryAPI(a.org).Query(ctx, flux)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("querying range for device %d: %w", deviceID, err))
	}

	return newPointIterator(ctx, result), nil
}

// QueryAggregate returns windowed aggregates over [from, to).
func (a *Adapter) QueryAggregate(ctx context.Context, deviceID int64, measurement string, from, to time.Time, window time.Duration, fn AggregateFn) ([]AggregateBucket, error) {
	fluxFn := string(fn)
	if fn == AggCount {
		fluxFn = "count"
	}

	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.measurement == %q)
  |> filter(fn: (r) => r._field == "value")
  |> aggregateWindow(every: %s, fn: %s, createEmpty: false)`,
		a.bucket, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
		measurementName(deviceID), measurement, window.String(), fluxFn)

	result, err := a.client.QueryAPI(a.org).Query(ctx, flux)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("querying aggregate for device %d: %w", deviceID, err))
	}
	defer result.Close()

	var buckets []AggregateBucket
	for result.Next() {
		v, ok := toFloat(result.Record().Value())
		if !ok {
			continue
		}
		buckets = append(buckets, AggregateBucket{BucketStart: result.Record().Time(), Value: v})
	}
	if result.Err() != nil {
		return nil, apierr.Internal(fmt.Errorf("iterating aggregate results: %w", result.Err()))
	}

	return buckets, nil
}

// CountRecent returns the total number of telemetry points written across
// every device in the past window, for the composite health report's
// detailed mode.
func (a *Adapter) CountRecent(ctx context.Context, window time.Duration) (int64, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._field == "value")
  |> count()
  |> group()
  |> sum()`,
		a.bucket, window.String())

	result, err := a.client.QueryAPI(a.org).Query(ctx, flux)
	if err != nil {
		return 0, apierr.Internal(fmt.Errorf("counting recent telemetry: %w", err))
	}
	defer result.Close()

	var total int64
	for result.Next() {
		if v, ok := toFloat(result.Record().Value()); ok {
			total += int64(v)
		}
	}
	if result.Err() != nil {
		return 0, apierr.Internal(fmt.Errorf("iterating recent telemetry count: %w", result.Err()))
	}
	return total, nil
}

func measurementFilter(measurement string) string {
	if measurement == "" {
		return ""
	}
	return fmt.Sprintf(`|> filter(fn: (r) => r.measurement == %q)`, measurement)
}

func rowToPoint(ts time.Time, measurement any, value any) ResultPoint {
	m, _ := measurement.(string)
	return ResultPoint{
		Measurement: m,
		Value:       toValue(value),
		Timestamp:   ts,
	}
}

func toValue(v any) pipeline.Value {
	switch t := v.(type) {
	case int64:
		return pipeline.NewInt(t)
	case float64:
		return pipeline.NewFloat(t)
	case bool:
		return pipeline.NewBool(t)
	case string:
		return pipeline.NewText(t)
	default:
		return pipeline.NewText(fmt.Sprintf("%v", t))
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
