package pipeline

import "time"

// Envelope is the normalized input shape accepted from either ingress:
//
//	{ device_id, api_key, timestamp?, data: {measurement: value, ...}, metadata?: {...} }
type Envelope struct {
	DeviceID  int64
	APIKey    string
	Timestamp *time.Time
	Data      map[string]any
	Metadata  map[string]string
}

// Point is a single normalized telemetry measurement ready for the
// Time-Series Adapter.
type Point struct {
	DeviceID    int64
	Measurement string
	Value       Value
	Timestamp   time.Time
}

// Outcome reports the result of submitting an Envelope through the pipeline.
type Outcome struct {
	Accepted          []Point
	RejectedFields    []string
	TimestampOverridden bool
}
