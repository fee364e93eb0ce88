package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotflow/connectivity/internal/pipeline"
)

func TestMeasurementFilter(t *testing.T) {
	require.Equal(t, "", measurementFilter(""))
	require.Contains(t, measurementFilter("temp"), `r.measurement == "temp"`)
}

func TestToValue(t *testing.T) {
	require.Equal(t, pipeline.VInt, toValue(int64(5)).Kind)
	require.Equal(t, pipeline.VFloat, toValue(1.5).Kind)
	require.Equal(t, pipeline.VBool, toValue(true).Kind)
	require.Equal(t, pipeline.VText, toValue("x").Kind)
	require.Equal(t, pipeline.VText, toValue(nil).Kind, "unrecognized types fall back to text")
}

func TestToFloat(t *testing.T) {
	f, ok := toFloat(1.5)
	require.True(t, ok)
	require.Equal(t, 1.5, f)

	f, ok = toFloat(int64(3))
	require.True(t, ok)
	require.Equal(t, 3.0, f)

	_, ok = toFloat("nope")
	require.False(t, ok)
}

func TestRowToPoint(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := rowToPoint(ts, "temp", 21.5)
	require.Equal(t, "temp", p.Measurement)
	require.Equal(t, ts, p.Timestamp)
	require.Equal(t, pipeline.VFloat, p.Value.Kind)
}

func TestRowToPoint_NonStringMeasurementBecomesEmpty(t *testing.T) {
	p := rowToPoint(time.Now(), 42, 1.0)
	require.Equal(t, "", p.Measurement)
}
