package eval

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Values of jsh are dynamically typed: string, float64, bool, nil, []any,
// map[string]any and Callable. Integers written by Go code are accepted
// wherever a number is.

// ToString converts a value to the string it expands to. Numbers use the
// shortest representation, nil becomes the empty string, and arrays and maps
// become compact JSON.
func ToString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatNumber(v)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case Callable:
		return "[function]"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "[unprintable]"
		}
		return string(data)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseArg parses a command argument as JSON, falling back to the argument
// itself when it is not valid JSON.
func ParseArg(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// ToNumber converts numbers and numeric strings to float64.
func ToNumber(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// Truthy reports whether v counts as true: nil, false, zero, NaN and the empty
// string are false; everything else is true.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	}
	return true
}

// TypeName returns a short name for the type of v, as shown by ls -l.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "array"
	case map[string]any:
		return "map"
	case Callable:
		return "function"
	}
	return "unknown"
}

// Combines the old and new value of a variable for name+=value.
func appendValue(old, v any) any {
	if a, ok := ToNumber(old); ok {
		if b, ok := ToNumber(v); ok {
			return a + b
		}
	}
	switch old := old.(type) {
	case map[string]any:
		if m, ok := v.(map[string]any); ok {
			merged := make(map[string]any, len(old)+len(m))
			for k, x := range old {
				merged[k] = x
			}
			for k, x := range m {
				merged[k] = x
			}
			return merged
		}
	case []any:
		out := append([]any(nil), old...)
		if arr, ok := v.([]any); ok {
			return append(out, arr...)
		}
		return append(out, v)
	}
	return ToString(old) + ToString(v)
}
