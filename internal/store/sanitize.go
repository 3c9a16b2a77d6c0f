package store

import (
	"fmt"
	"time"
)

// maxSanitizeDepth caps recursion when walking ingested payloads, which are
// untrusted and may nest arbitrarily.
const maxSanitizeDepth = 20

// Sanitize normalizes a raw payload for the read path: timestamps and other
// non-JSON-native values become strings, and nesting beyond the depth cap is
// replaced with a placeholder.
func Sanitize(payload map[string]any) map[string]any {
	out, _ := sanitizeValue(payload, 0).(map[string]any)
	return out
}

func sanitizeValue(v any, depth int) any {
	if depth >= maxSanitizeDepth {
		return "[truncated]"
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = sanitizeValue(inner, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner, depth+1)
		}
		return out
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val)
	case nil, bool, string, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
