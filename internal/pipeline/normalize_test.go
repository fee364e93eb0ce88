package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlatten_OneLevelNesting(t *testing.T) {
	leaves, rejected := flatten(map[string]any{
		"temp": 21.5,
		"accel": map[string]any{
			"x": 1.0,
			"y": 2.0,
		},
	})
	require.Empty(t, rejected)
	require.Equal(t, 21.5, leaves["temp"])
	require.Equal(t, 1.0, leaves["accel.x"])
	require.Equal(t, 2.0, leaves["accel.y"])
}

func TestFlatten_RejectsUnrepresentableNestedValues(t *testing.T) {
	_, rejected := flatten(map[string]any{
		"meta": map[string]any{
			"tags": []any{"a", "b"},
		},
	})
	require.Equal(t, []string{"meta.tags"}, rejected)
}

func TestFlatten_RejectsDeepNesting(t *testing.T) {
	_, rejected := flatten(map[string]any{
		"outer": map[string]any{
			"inner": map[string]any{"x": 1.0},
		},
	})
	require.Equal(t, []string{"outer.inner"}, rejected)
}

type fakeTracker struct {
	kind ValueKind
	ok   bool
}

func (f fakeTracker) PriorKind(int64, string) (ValueKind, bool) { return f.kind, f.ok }

func TestCoerce_IntegerStaysIntWithoutPriorFloat(t *testing.T) {
	v, err := coerce(1, "temp", float64(21), fakeTracker{})
	require.NoError(t, err)
	require.Equal(t, VInt, v.Kind)
	require.Equal(t, int64(21), v.I)
}

func TestCoerce_IntegerCoercedToFloatWhenPriorPathIsFloat(t *testing.T) {
	v, err := coerce(1, "temp", float64(21), fakeTracker{kind: VFloat, ok: true})
	require.NoError(t, err)
	require.Equal(t, VFloat, v.Kind)
	require.Equal(t, 21.0, v.F)
}

func TestCoerce_NonIntegerFloatStaysFloat(t *testing.T) {
	v, err := coerce(1, "temp", 21.5, fakeTracker{})
	require.NoError(t, err)
	require.Equal(t, VFloat, v.Kind)
}

func TestCoerce_BoolAndString(t *testing.T) {
	v, err := coerce(1, "on", true, fakeTracker{})
	require.NoError(t, err)
	require.Equal(t, VBool, v.Kind)

	v, err = coerce(1, "label", "ok", fakeTracker{})
	require.NoError(t, err)
	require.Equal(t, VText, v.Kind)
}

func TestCoerce_UnrepresentableTypeErrors(t *testing.T) {
	_, err := coerce(1, "weird", []any{1, 2}, fakeTracker{})
	require.Error(t, err)
}

func TestResolveTimestamp_NilUsesServerTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts, overridden := resolveTimestamp(nil, now, time.Hour)
	require.Equal(t, now, ts)
	require.False(t, overridden)
}

func TestResolveTimestamp_WithinSkewUsesClientTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client := now.Add(-5 * time.Minute)
	ts, overridden := resolveTimestamp(&client, now, time.Hour)
	require.Equal(t, client, ts)
	require.False(t, overridden)
}

func TestResolveTimestamp_OutsideSkewOverridesWithServerTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client := now.Add(-48 * time.Hour)
	ts, overridden := resolveTimestamp(&client, now, time.Hour)
	require.Equal(t, now, ts)
	require.True(t, overridden)
}
