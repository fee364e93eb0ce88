package timeseries

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iotflow/connectivity/internal/pipeline"
)

func TestMeasurementName(t *testing.T) {
	require.Equal(t, "device_42", measurementName(42))
}

func TestCompatibleKinds_IntOntoEstablishedFloatPath(t *testing.T) {
	require.True(t, compatibleKinds(pipeline.VFloat, pipeline.NewInt(5)))
}

func TestCompatibleKinds_OtherCrossKindCombinationsRejected(t *testing.T) {
	require.False(t, compatibleKinds(pipeline.VFloat, pipeline.NewText("x")))
	require.False(t, compatibleKinds(pipeline.VInt, pipeline.NewFloat(1.5)))
	require.False(t, compatibleKinds(pipeline.VBool, pipeline.NewInt(1)))
}

func TestFieldValue(t *testing.T) {
	require.Equal(t, int64(5), fieldValue(pipeline.NewInt(5)))
	require.Equal(t, 1.5, fieldValue(pipeline.NewFloat(1.5)))
	require.Equal(t, true, fieldValue(pipeline.NewBool(true)))
	require.Equal(t, "x", fieldValue(pipeline.NewText("x")))
}

func TestAdapter_PriorKindRecordsAndReportsPerPath(t *testing.T) {
	a := NewAdapter("http://localhost:8086", "token", "org", "bucket")
	defer a.Close()

	_, ok := a.PriorKind(1, "temp")
	require.False(t, ok)

	a.recordKind(1, "temp", pipeline.VFloat)
	kind, ok := a.PriorKind(1, "temp")
	require.True(t, ok)
	require.Equal(t, pipeline.VFloat, kind)

	_, ok = a.PriorKind(2, "temp")
	require.False(t, ok, "paths are scoped per device")
}
