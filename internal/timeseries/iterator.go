package timeseries

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api"
)

// PointIterator is a context-bound iterator over QueryRange results. Its
// lifetime is bound to the request context it was created with: if ctx is
// cancelled, the next Next() call returns false and Err() reports the
// cancellation, and the underlying Influx query result is torn down either
// way.
type PointIterator struct {
	ctx    context.Context
	result *api.QueryTableResult
	closed bool
}

func newPointIterator(ctx context.Context, result *api.QueryTableResult) *PointIterator {
	return &PointIterator{ctx: ctx, result: result}
}

// Next advances the iterator. It returns false at end-of-results, on query
// error, or once the bound context is cancelled.
func (it *PointIterator) Next() bool {
	if it.closed {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.Close()
		return false
	}
	if !it.result.Next() {
		it.Close()
		return false
	}
	return true
}

// Point returns the current row. Only valid after a Next() call returned true.
func (it *PointIterator) Point() ResultPoint {
	rec := it.result.Record()
	return rowToPoint(rec.Time(), rec.ValueByKey("measurement"), rec.Value())
}

// Err returns the first error encountered, including context cancellation.
func (it *PointIterator) Err() error {
	if err := it.ctx.Err(); err != nil {
		return err
	}
	return it.result.Err()
}

// Close releases the underlying Influx query resources. Safe to call more
// than once, and safe to call instead of draining to completion.
func (it *PointIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.result.Close()
}
