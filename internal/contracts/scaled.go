package contracts

import (
	"encoding/json"
	"fmt"
)

// scaledInt reads an integer field out of a params/storage dict. Values
// arrive as float64 after a JSON round trip; scaledInt converts once, at
// the boundary, so that every subsequent operation (comparisons, sticky
// breach checks) is pure integer arithmetic and storage never accumulates
// floating-point drift. Callers are expected to pass already-scaled whole
// numbers (e.g. hundredths of a degree) — this never fabricates precision,
// it only removes the float64 wrapper JSON decoding adds.
func scaledInt(m map[string]interface{}, key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("field %q is not an integer: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("field %q must be an integer, got %T", key, v)
	}
}
