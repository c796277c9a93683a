package distance

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields resolves a named field on the record being scored.
type Fields interface {
	Field(name string) (any, bool)
}

// Source is a decoded document source. It is the Fields implementation used
// for JSON documents.
type Source map[string]any

// Field returns the top-level value stored under name.
func (s Source) Field(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// splitInts parses a delimited string into integers. Empty input yields an
// empty slice, and trailing empty tokens are dropped ("1,2," is two elements).
func splitInts(s, sep string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, sep)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}

	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token %q is not an integer", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// toInts converts a loosely typed value (delimited string, scalar or list) into
// an ordered sequence of integers.
func toInts(v any, sep string) ([]int64, error) {
	switch x := v.(type) {
	case []any:
		out := make([]int64, 0, len(x))
		for _, e := range x {
			s, err := scalarString(e)
			if err != nil {
				return nil, err
			}
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("element %q is not an integer", s)
			}
			out = append(out, n)
		}
		return out, nil
	case []int64:
		return append([]int64(nil), x...), nil
	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, nil
	}

	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	return splitInts(s, sep)
}

// scalarString renders a scalar the way it would be written in a document.
// Integral floats render without a fraction so JSON numbers like 30 parse.
func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return numberString(x)
	case int:
		return strconv.Itoa(x), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("value %v is not finite", x)
		}
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case nil:
		return "", fmt.Errorf("value is null")
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// numberString renders a decoded JSON number like the float64 it would have
// decoded to without UseNumber, keeping integers exact.
func numberString(n json.Number) (string, error) {
	if _, err := n.Int64(); err == nil {
		return n.String(), nil
	}
	f, err := n.Float64()
	if err != nil {
		return n.String(), nil
	}
	return scalarString(f)
}
