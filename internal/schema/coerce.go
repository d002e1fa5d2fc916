package schema

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Coerce converts raw header, query or path values into the JSON value the
// schema expects, so they can be validated with Validate. Values that do not
// parse are returned unchanged and fail validation with a type issue.
func Coerce(values []string, s *Schema, defs Definitions) any {
	if len(values) == 0 {
		return nil
	}
	s = defs.Resolve(s)
	if s == nil {
		return values[0]
	}
	switch s.Kind {
	case KindArray:
		raw := values
		if len(values) == 1 {
			raw = strings.Split(values[0], ",")
		}
		out := make([]any, len(raw))
		for i, v := range raw {
			out[i] = Coerce([]string{strings.TrimSpace(v)}, s.Items, defs)
		}
		return out
	case KindInteger, KindNumber:
		if _, err := strconv.ParseFloat(values[0], 64); err == nil {
			return json.Number(values[0])
		}
	case KindBoolean:
		if b, err := strconv.ParseBool(values[0]); err == nil {
			return b
		}
	case KindNull:
		if values[0] == "null" || values[0] == "" {
			return nil
		}
	case KindComposite:
		// Use the first member that declares a scalar type.
		for _, c := range s.Children {
			if r := defs.Resolve(c); r != nil && r.Kind != KindAny && r.Kind != KindString && r.Kind != KindComposite {
				v := Coerce(values, r, defs)
				if _, isString := v.(string); !isString {
					return v
				}
			}
		}
	case KindAny, KindObject, KindString, KindRef:
	}
	return values[0]
}
