package pipeline

import (
	"context"
	"sync"
	"time"
)

// fakeWriter is an in-memory TimeSeriesWriter double for Service/Batcher
// tests. It never rejects measurements unless rejectNext is configured.
type fakeWriter struct {
	mu         sync.Mutex
	written    []Point
	rejectNext []string
	writeErr   error
	priorKinds map[string]ValueKind
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{priorKinds: make(map[string]ValueKind)}
}

func (f *fakeWriter) Write(_ context.Context, deviceID int64, points []Point) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.written = append(f.written, points...)
	return f.rejectNext, nil
}

func (f *fakeWriter) PriorKind(deviceID int64, measurement string) (ValueKind, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.priorKinds[measurement]
	return k, ok
}

func (f *fakeWriter) pointCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

// fakeLiveness is a LivenessUpdater double that records SetOnline calls.
type fakeLiveness struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeLiveness) SetOnline(_ context.Context, deviceID int64, _ time.Duration, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deviceID)
}

func (f *fakeLiveness) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
