// Package pipeline is the Telemetry Pipeline: it normalizes inbound envelopes
// from either ingress into typed points, updates the Liveness Cache, and
// batches writes through the Time-Series Adapter.
package pipeline

import "encoding/json"

// ValueKind tags which variant of Value is populated.
type ValueKind int

const (
	VInt ValueKind = iota
	VFloat
	VBool
	VText
)

// Value is a tagged union for a single telemetry measurement reading. It
// replaces passing around bare `any` so every call site knows exactly which
// of the four representable types it holds.
type Value struct {
	Kind ValueKind
	I    int64
	F    float64
	B    bool
	S    string
}

func NewInt(v int64) Value   { return Value{Kind: VInt, I: v} }
func NewFloat(v float64) Value { return Value{Kind: VFloat, F: v} }
func NewBool(v bool) Value   { return Value{Kind: VBool, B: v} }
func NewText(v string) Value { return Value{Kind: VText, S: v} }

// AsFloat64 returns the value coerced to float64, for writers whose wire
// format has no distinct integer type (e.g. line protocol float fields).
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case VInt:
		return float64(v.I), true
	case VFloat:
		return v.F, true
	default:
		return 0, false
	}
}

// Raw returns the value as a plain Go scalar, for callers (JSON responses,
// MQTT command payloads) that want the underlying type rather than the
// tagged-union wrapper.
func (v Value) Raw() any {
	switch v.Kind {
	case VInt:
		return v.I
	case VFloat:
		return v.F
	case VBool:
		return v.B
	default:
		return v.S
	}
}

// MarshalJSON renders the value as its underlying scalar, not the struct.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}
