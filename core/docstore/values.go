package docstore

import (
	"encoding/json"
	"time"
)

type serverTimestamp struct{}

// MarshalJSON renders the sentinel with a fixed width so size estimates
// stay close to the resolved timestamp.
func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"SERVER_TIMESTAMP"`), nil
}

// ServerTimestamp is a field value placeholder. Stores replace it with the
// commit time when the write is applied.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// ResolveServerTimestamps returns a deep copy of fields with every sentinel
// replaced by now.
func ResolveServerTimestamps(fields map[string]any, now time.Time) map[string]any {
	out, _ := resolve(fields, now).(map[string]any)
	return out
}

func resolve(v any, now time.Time) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolve(item, now)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolve(item, now)
		}
		return out
	case serverTimestamp:
		return now
	default:
		return val
	}
}

// CloneFields deep-copies a field map. Sentinels are kept.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneFields(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		return val
	}
}

// EncodedSize estimates the stored size of a field map as its JSON length.
func EncodedSize(fields map[string]any) (int, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
