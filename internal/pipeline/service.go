package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/obs"
)

// Service is the Telemetry Pipeline: normalization plus two delivery modes —
// a synchronous write-through for HTTP submissions (so the caller can
// observe PartialWrite/StoreUnavailable) and an async per-device batcher for
// the higher-throughput MQTT path.
type Service struct {
	writer       TimeSeriesWriter
	liveness     LivenessUpdater
	batcher      *Batcher
	logger       *slog.Logger
	heartbeatTTL time.Duration
	skew         time.Duration
}

func NewService(writer TimeSeriesWriter, liveness LivenessUpdater, batcher *Batcher, logger *slog.Logger, heartbeatTTL, skew time.Duration) *Service {
	return &Service{
		writer:       writer,
		liveness:     liveness,
		batcher:      batcher,
		logger:       logger,
		heartbeatTTL: heartbeatTTL,
		skew:         skew,
	}
}

// HeartbeatTTL returns the configured liveness TTL, so callers touching the
// Liveness Cache directly (e.g. the heartbeat endpoint) stay consistent with
// the pipeline's own SetOnline calls.
func (s *Service) HeartbeatTTL() time.Duration { return s.heartbeatTTL }

func (s *Service) normalize(deviceID int64, env Envelope) (points []Point, rejected []string, overridden bool) {
	now := time.Now().UTC()
	ts, overridden := resolveTimestamp(env.Timestamp, now, s.skew)

	leaves, flattenRejected := flatten(env.Data)
	rejected = append(rejected, flattenRejected...)

	for measurement, raw := range leaves {
		val, err := coerce(deviceID, measurement, raw, s.writer)
		if err != nil {
			rejected = append(rejected, measurement)
			continue
		}
		points = append(points, Point{
			DeviceID:    deviceID,
			Measurement: measurement,
			Value:       val,
			Timestamp:   ts,
		})
	}

	return points, rejected, overridden
}

// Submit runs the full synchronous pipeline for an HTTP telemetry submission:
// normalize, update liveness, write through the Time-Series Adapter (with the
// adapter's own retry/backoff), and report accept/partial/unavailable.
func (s *Service) Submit(ctx context.Context, resolvedDeviceID int64, env Envelope) (Outcome, error) {
	if env.DeviceID != 0 && env.DeviceID != resolvedDeviceID {
		return Outcome{}, apierr.Validation("device_id in envelope does not match authenticated device")
	}

	points, rejected, overridden := s.normalize(resolvedDeviceID, env)
	if overridden {
		s.logger.Warn("telemetry timestamp outside skew tolerance, overridden with server time", "device_id", resolvedDeviceID)
	}
	for range rejected {
		obs.TelemetryPointsRejectedTotal.WithLabelValues("normalize").Inc()
	}

	seenAt := time.Now().UTC()
	s.liveness.SetOnline(ctx, resolvedDeviceID, s.heartbeatTTL, seenAt)

	if len(points) == 0 {
		return Outcome{RejectedFields: rejected}, apierr.Validation("no representable measurements in submission")
	}

	writeRejected, err := s.writer.Write(ctx, resolvedDeviceID, points)
	if err != nil {
		return Outcome{RejectedFields: rejected}, apierr.StoreUnavailable(err)
	}

	obs.TelemetryPointsWrittenTotal.WithLabelValues("http").Add(float64(len(points) - len(writeRejected)))
	rejected = append(rejected, writeRejected...)

	out := Outcome{Accepted: points, RejectedFields: rejected, TimestampOverridden: overridden}
	if len(writeRejected) > 0 {
		return out, apierr.New(apierr.KindPartialWrite, "one or more measurements were rejected")
	}
	return out, nil
}

// SubmitAsync runs normalization and the liveness update synchronously (MQTT
// authorization/rate-limit already happened before this is called), then
// hands the resulting points to the batcher for backpressure-smoothed
// writing. Used by the MQTT ingress, where there is no per-message caller
// waiting on a write outcome.
func (s *Service) SubmitAsync(ctx context.Context, resolvedDeviceID int64, env Envelope) {
	points, rejected, overridden := s.normalize(resolvedDeviceID, env)
	if overridden {
		s.logger.Warn("telemetry timestamp outside skew tolerance, overridden with server time", "device_id", resolvedDeviceID)
	}
	if len(rejected) > 0 {
		s.logger.Warn("telemetry submission had unrepresentable measurements", "device_id", resolvedDeviceID, "rejected", rejected)
		for range rejected {
			obs.TelemetryPointsRejectedTotal.WithLabelValues("normalize").Inc()
		}
	}

	s.liveness.SetOnline(ctx, resolvedDeviceID, s.heartbeatTTL, time.Now().UTC())

	for _, p := range points {
		s.batcher.Enqueue(p)
	}
	obs.TelemetryPointsWrittenTotal.WithLabelValues("mqtt").Add(float64(len(points)))
}
