package pipeline

import (
	"context"
	"time"
)

// TimeSeriesWriter is the subset of the Time-Series Adapter the pipeline
// depends on. Defined here (not imported from internal/timeseries) so the
// pipeline stays decoupled from the adapter's InfluxDB-specific concerns;
// internal/timeseries.Adapter implements it.
type TimeSeriesWriter interface {
	Write(ctx context.Context, deviceID int64, points []Point) (rejectedMeasurements []string, err error)
	PriorKind(deviceID int64, measurement string) (ValueKind, bool)
}

// LivenessUpdater is the subset of the Liveness Cache the pipeline depends on.
type LivenessUpdater interface {
	SetOnline(ctx context.Context, deviceID int64, ttl time.Duration, seenAt time.Time)
}
