package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ToInt64 converts various types to int64 using explicit type switching.
// It handles standard integer types, floats, json.Number, strings, and byte slices.
func ToInt64(val any) int64 {
	switch v := val.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case uint16:
		return int64(v)
	case uint8:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return int64(f)
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return i
	default:
		i, _ := strconv.ParseInt(fmt.Sprintf("%v", v), 10, 64)
		return i
	}
}

// ToString converts various types to string.
func ToString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// IsEmpty reports whether a field value counts as absent for merging:
// nil, or an empty string.
func IsEmpty(val any) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}

// epochMillisThreshold separates second-based from millisecond-based epochs.
// Values above it are read as milliseconds (realtime tree stores write ms).
const epochMillisThreshold = 100_000_000_000

// ToTime interprets a recency value. It understands time.Time, RFC3339 strings,
// numeric epochs (seconds or milliseconds) and exported timestamp maps
// ({"_seconds": n} or {"seconds": n}). ok is false when nothing usable is found.
func ToTime(val any) (t time.Time, ok bool) {
	switch v := val.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case string:
		if v == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, true
			}
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return fromEpoch(n), n != 0
		}
		return time.Time{}, false
	case map[string]any:
		for _, key := range []string{"_seconds", "seconds"} {
			if s, found := v[key]; found {
				return time.Unix(ToInt64(s), 0).UTC(), true
			}
		}
		return time.Time{}, false
	case int, int64, int32, uint, uint64, uint32, json.Number:
		n := ToInt64(v)
		return fromEpoch(n), n != 0
	case float64:
		if v == 0 || math.IsNaN(v) {
			return time.Time{}, false
		}
		return fromEpoch(int64(v)), true
	default:
		return time.Time{}, false
	}
}

func fromEpoch(n int64) time.Time {
	if n > epochMillisThreshold || n < -epochMillisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// NormalizeNumber converts a json.Number into int64 when it is integral and
// float64 otherwise. Other values are returned unchanged.
func NormalizeNumber(val any) any {
	n, ok := val.(json.Number)
	if !ok {
		return val
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// NormalizeJSON walks a decoded JSON value and converts every json.Number
// via NormalizeNumber. Maps and slices are copied.
func NormalizeJSON(val any) any {
	switch v := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = NormalizeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = NormalizeJSON(item)
		}
		return out
	default:
		return NormalizeNumber(v)
	}
}

// FormatBytes renders a byte count the way the reports print it.
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	const k = 1024
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(n)
	i := 0
	for value >= k && i < len(units)-1 {
		value /= k
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", value, units[i])
}
