package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// kindOf reports the JSON kind of a decoded value. Integral numbers report
// KindInteger, everything numeric else KindNumber.
func kindOf(v any) Kind {
	switch x := v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBoolean
	case string:
		return KindString
	case json.Number:
		if f, err := x.Float64(); err == nil && isIntegral(f) {
			return KindInteger
		}
		return KindNumber
	case float64:
		if isIntegral(x) {
			return KindInteger
		}
		return KindNumber
	case float32:
		if isIntegral(float64(x)) {
			return KindInteger
		}
		return KindNumber
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInteger
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	default:
		return KindAny
	}
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// typeAccepts reports whether a value of kind actual satisfies declared.
func typeAccepts(declared, actual Kind) bool {
	switch declared {
	case KindAny, KindComposite, KindRef:
		return true
	case KindNumber:
		return actual == KindNumber || actual == KindInteger
	case KindObject, KindArray, KindString, KindInteger, KindBoolean, KindNull:
		return declared == actual
	}
	return false
}

// toFloat converts a decoded JSON number to float64.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// equalValues compares two decoded JSON values, treating numbers by value.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !equalValues(xv, yv) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalValues(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// describe renders a value for a human readable message.
func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case json.Number:
		return x.String()
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprint(x)
	}
}

func describeAll(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = describe(v)
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// sortedKeys returns the keys of an object in lexical order so that
// findings come out in a stable order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
