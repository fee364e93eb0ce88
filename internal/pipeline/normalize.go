package pipeline

import (
	"fmt"
	"sort"
	"time"
)

// flatten walks data one level deep, producing dotted measurement names for
// nested objects ("outer.inner"). Leaf values that are not scalar/bool are
// returned in the rejected list.
func flatten(data map[string]any) (leaves map[string]any, rejected []string) {
	leaves = make(map[string]any, len(data))
	for key, val := range data {
		switch v := val.(type) {
		case map[string]any:
			for nestedKey, nestedVal := range v {
				flatKey := key + "." + nestedKey
				if isScalarOrBool(nestedVal) {
					leaves[flatKey] = nestedVal
				} else {
					rejected = append(rejected, flatKey)
				}
			}
		default:
			if isScalarOrBool(val) {
				leaves[key] = val
			} else {
				rejected = append(rejected, key)
			}
		}
	}
	sort.Strings(rejected)
	return leaves, rejected
}

func isScalarOrBool(v any) bool {
	switch v.(type) {
	case float64, int, int64, string, bool:
		return true
	default:
		return false
	}
}

// typeTracker records which Value.Kind a (device_id, measurement) path has
// previously been written as, so a later integer on a float path is coerced
// instead of rejected.
type typeTracker interface {
	PriorKind(deviceID int64, measurement string) (ValueKind, bool)
}

// coerce converts a decoded JSON leaf value into a Value, applying the
// integer-to-float coercion rule when a prior float path exists for the same
// measurement. Returns an error for values that cannot be represented.
func coerce(deviceID int64, measurement string, raw any, tracker typeTracker) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return NewBool(v), nil
	case string:
		return NewText(v), nil
	case float64:
		// encoding/json always decodes JSON numbers into float64; recover
		// integer precision when the value is exactly representable and no
		// prior float path exists for this measurement.
		if v == float64(int64(v)) {
			if kind, ok := tracker.PriorKind(deviceID, measurement); ok && kind == VFloat {
				return NewFloat(v), nil
			}
			if const2p53 := float64(1 << 53); v <= const2p53 && v >= -const2p53 {
				return NewInt(int64(v)), nil
			}
		}
		return NewFloat(v), nil
	case int64:
		return NewInt(v), nil
	case int:
		return NewInt(int64(v)), nil
	default:
		return Value{}, fmt.Errorf("measurement %q: unrepresentable value type %T", measurement, raw)
	}
}

// resolveTimestamp substitutes server time when the client timestamp is
// missing, and overrides it (with a warning flag) when the client timestamp
// deviates from server time by more than skew.
func resolveTimestamp(clientTS *time.Time, serverReceivedAt time.Time, skew time.Duration) (ts time.Time, overridden bool) {
	if clientTS == nil {
		return serverReceivedAt, false
	}
	delta := serverReceivedAt.Sub(*clientTS)
	if delta < 0 {
		delta = -delta
	}
	if delta > skew {
		return serverReceivedAt, true
	}
	return *clientTS, false
}
