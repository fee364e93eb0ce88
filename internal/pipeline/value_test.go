package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue_RawReturnsUnderlyingScalar(t *testing.T) {
	require.Equal(t, int64(5), NewInt(5).Raw())
	require.Equal(t, 3.5, NewFloat(3.5).Raw())
	require.Equal(t, true, NewBool(true).Raw())
	require.Equal(t, "on", NewText("on").Raw())
}

func TestValue_MarshalJSONRendersScalarNotStruct(t *testing.T) {
	b, err := json.Marshal(NewInt(42))
	require.NoError(t, err)
	require.Equal(t, "42", string(b))

	b, err = json.Marshal(NewText("hello"))
	require.NoError(t, err)
	require.Equal(t, `"hello"`, string(b))

	b, err = json.Marshal(NewBool(false))
	require.NoError(t, err)
	require.Equal(t, "false", string(b))
}

func TestValue_AsFloat64(t *testing.T) {
	f, ok := NewInt(7).AsFloat64()
	require.True(t, ok)
	require.Equal(t, 7.0, f)

	f, ok = NewFloat(1.5).AsFloat64()
	require.True(t, ok)
	require.Equal(t, 1.5, f)

	_, ok = NewText("nope").AsFloat64()
	require.False(t, ok)
}
