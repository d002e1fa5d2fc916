package schema

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Policy decides how an object schema that does not declare
// additionalProperties treats keys it does not list.
type Policy int

const (
	// PolicyUnset is rejected by NewMatcher; callers must choose.
	PolicyUnset Policy = iota
	// PolicyPermissive accepts undeclared keys.
	PolicyPermissive
	// PolicyStrict rejects undeclared keys as if additionalProperties were false.
	PolicyStrict
)

func (p Policy) String() string {
	return []string{"unset", "permissive", "strict"}[p]
}

// ParsePolicy parses "permissive" or "strict".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permissive":
		return PolicyPermissive, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyUnset, fmt.Errorf("unknown additional properties policy %q (want permissive or strict)", s)
	}
}

// Direction tells the matcher which side of an exchange a value belongs to.
type Direction int

const (
	DirectionRequest Direction = iota
	DirectionResponse
)

// Options configures a Matcher.
type Options struct {
	AdditionalProperties Policy
	Direction            Direction
	Definitions          Definitions
}

// ErrPolicyUnset is returned when no additional properties policy was chosen.
var ErrPolicyUnset = errors.New("schema: additional properties policy must be set")

// Matcher validates decoded JSON values against schema trees. A Matcher is
// immutable and safe for concurrent use.
type Matcher struct {
	opts Options
}

// NewMatcher creates a Matcher. The additional properties policy is required.
func NewMatcher(opts Options) (*Matcher, error) {
	if opts.AdditionalProperties == PolicyUnset {
		return nil, ErrPolicyUnset
	}
	return &Matcher{opts: opts}, nil
}

// WithDirection returns a copy of the matcher for the given direction.
func (m *Matcher) WithDirection(d Direction) *Matcher {
	c := *m
	c.opts.Direction = d
	return &c
}

// Validate checks value against s. location is the prefix used for value
// locations in the returned issues. Validate never fails: mismatches are
// reported as issues.
func (m *Matcher) Validate(value any, s *Schema, location string) []Issue {
	st := &state{active: map[string]bool{}}
	return m.validate(st, value, s, location, nil)
}

// state is per Validate call. active holds the (ref, value location) pairs
// currently being checked, for coinductive handling of recursive schemas.
type state struct {
	active map[string]bool
}

// objectScope carries allOf context into object validation.
type objectScope struct {
	keyword   string
	evaluated map[string]struct{}
	// deferUnspecified leaves undeclared keys of objects without
	// additionalProperties to the enclosing allOf.
	deferUnspecified bool
}

func (m *Matcher) validate(st *state, v any, s *Schema, loc string, scope *objectScope) []Issue {
	if s == nil {
		return nil
	}
	switch s.Kind {
	case KindRef:
		return m.validateRef(st, v, s, loc, scope)
	case KindComposite:
		if v == nil && s.Nullable {
			return nil
		}
		return m.validateComposite(st, v, s, loc, scope)
	case KindAny, KindObject, KindArray, KindString, KindNumber, KindInteger, KindBoolean, KindNull:
	}

	if v == nil && s.Nullable {
		return nil
	}
	actual := kindOf(v)
	if !typeAccepts(s.Kind, actual) {
		return []Issue{typeIssue(v, actual, s, loc)}
	}

	issues := m.validateEnum(v, s, loc)
	switch x := v.(type) {
	case map[string]any:
		issues = append(issues, m.validateObject(st, x, s, loc, scope)...)
	case []any:
		issues = append(issues, m.validateArray(st, x, s, loc)...)
	case string:
		issues = append(issues, validateString(x, s, loc)...)
	default:
		if f, ok := toFloat(v); ok {
			issues = append(issues, validateNumber(v, f, s, loc)...)
		}
	}
	if s.Not != nil && len(m.validate(st, v, s.Not, loc, nil)) == 0 {
		issues = append(issues, Issue{
			Kind:           IssueIncompatible,
			Keyword:        "not",
			Message:        "must NOT be valid against the schema in not",
			ValueLocation:  loc,
			SchemaLocation: JoinLocation(s.Location, "not"),
			Value:          v,
			Constraint:     "not",
		})
	}
	return issues
}

func (m *Matcher) validateRef(st *state, v any, s *Schema, loc string, scope *objectScope) []Issue {
	key := s.Ref + "@" + loc
	if st.active[key] {
		// Re-entering the same definition at the same value: assume it holds.
		return nil
	}
	target, ok := m.opts.Definitions[s.Ref]
	if !ok {
		return nil
	}
	st.active[key] = true
	defer delete(st.active, key)
	return m.validate(st, v, target, loc, scope)
}

func typeIssue(v any, actual Kind, s *Schema, loc string) Issue {
	want := s.Kind.String()
	if s.Nullable {
		want += " or null"
	}
	return Issue{
		Kind:           IssueIncompatible,
		Keyword:        "type",
		Message:        fmt.Sprintf("must be %s but was %s", want, actual),
		ValueLocation:  loc,
		SchemaLocation: JoinLocation(s.Location, "type"),
		Value:          v,
		Constraint:     "type: " + want,
	}
}

func (m *Matcher) validateEnum(v any, s *Schema, loc string) []Issue {
	if len(s.Enum) == 0 {
		return nil
	}
	for _, allowed := range s.Enum {
		if equalValues(v, allowed) {
			return nil
		}
	}
	return []Issue{{
		Kind:           IssueIncompatible,
		Keyword:        "enum",
		Message:        fmt.Sprintf("must be equal to one of the allowed values: %s", describeAll(s.Enum)),
		ValueLocation:  loc,
		SchemaLocation: JoinLocation(s.Location, "enum"),
		Value:          v,
		Constraint:     "enum: " + describeAll(s.Enum),
	}}
}

func (m *Matcher) validateObject(st *state, obj map[string]any, s *Schema, loc string, scope *objectScope) []Issue {
	var issues []Issue
	for _, name := range s.Required {
		if _, ok := obj[name]; ok {
			continue
		}
		if m.exempt(s.Properties[name], 0) {
			continue
		}
		issues = append(issues, Issue{
			Kind:           IssueMissing,
			Keyword:        "required",
			Message:        fmt.Sprintf("must have required property '%s'", name),
			ValueLocation:  loc,
			SchemaLocation: JoinLocation(s.Location, "required"),
			Constraint:     "required: " + name,
		})
	}

	keyword := "additionalProperties"
	if scope != nil && scope.keyword != "" {
		keyword = scope.keyword
	}
	for _, key := range sortedKeys(obj) {
		val := obj[key]
		child := JoinLocation(loc, key)
		if prop, ok := s.Properties[key]; ok {
			issues = append(issues, m.validate(st, val, prop, child, nil)...)
			continue
		}
		if scope != nil {
			if _, ok := scope.evaluated[key]; ok {
				continue
			}
		}
		switch s.AdditionalProperties.Policy {
		case AdditionalAllowed:
		case AdditionalSchema:
			issues = append(issues, m.validate(st, val, s.AdditionalProperties.Schema, child, nil)...)
		case AdditionalForbidden:
			issues = append(issues, additionalIssue(keyword, key, val, s, loc))
		case AdditionalUnspecified:
			if m.opts.AdditionalProperties == PolicyStrict && (scope == nil || !scope.deferUnspecified) {
				issues = append(issues, additionalIssue(keyword, key, val, s, loc))
			}
		}
	}

	n := uint64(len(obj))
	if s.MinProperties != nil && n < *s.MinProperties {
		issues = append(issues, boundIssue("minProperties", fmt.Sprintf("must NOT have fewer than %d properties but had %d", *s.MinProperties, n), obj, s, loc, fmt.Sprint(*s.MinProperties)))
	}
	if s.MaxProperties != nil && n > *s.MaxProperties {
		issues = append(issues, boundIssue("maxProperties", fmt.Sprintf("must NOT have more than %d properties but had %d", *s.MaxProperties, n), obj, s, loc, fmt.Sprint(*s.MaxProperties)))
	}
	return issues
}

// exempt reports whether a required property may be absent in
// the current direction (readOnly in requests, writeOnly in responses).
func (m *Matcher) exempt(prop *Schema, depth int) bool {
	prop = m.opts.Definitions.Resolve(prop)
	if prop == nil || depth > 32 {
		return false
	}
	if prop.Kind == KindComposite && prop.Operator == OpAllOf {
		for _, c := range prop.Children {
			if m.exempt(c, depth+1) {
				return true
			}
		}
	}
	switch m.opts.Direction {
	case DirectionRequest:
		return prop.ReadOnly
	case DirectionResponse:
		return prop.WriteOnly
	}
	return false
}

func additionalIssue(keyword, key string, val any, s *Schema, loc string) Issue {
	schemaLoc := s.AdditionalProperties.Location
	if schemaLoc == "" {
		schemaLoc = JoinLocation(s.Location, "additionalProperties")
	}
	return Issue{
		Kind:           IssueUnknown,
		Keyword:        keyword,
		Message:        fmt.Sprintf("must NOT have additional properties - %s", key),
		ValueLocation:  JoinLocation(loc, key),
		SchemaLocation: schemaLoc,
		Value:          val,
		Constraint:     keyword + ": false",
	}
}

func (m *Matcher) validateArray(st *state, arr []any, s *Schema, loc string) []Issue {
	var issues []Issue
	if s.Items != nil {
		for i, item := range arr {
			issues = append(issues, m.validate(st, item, s.Items, IndexLocation(loc, i), nil)...)
		}
	}
	n := uint64(len(arr))
	if s.MinItems != nil && n < *s.MinItems {
		issues = append(issues, boundIssue("minItems", fmt.Sprintf("must NOT have fewer than %d items but had %d", *s.MinItems, n), arr, s, loc, fmt.Sprint(*s.MinItems)))
	}
	if s.MaxItems != nil && n > *s.MaxItems {
		issues = append(issues, boundIssue("maxItems", fmt.Sprintf("must NOT have more than %d items but had %d", *s.MaxItems, n), arr, s, loc, fmt.Sprint(*s.MaxItems)))
	}
	if s.UniqueItems {
	outer:
		for i := 0; i < len(arr); i++ {
			for j := 0; j < i; j++ {
				if equalValues(arr[i], arr[j]) {
					issues = append(issues, boundIssue("uniqueItems", fmt.Sprintf("must NOT have duplicate items (items ## %d and %d are identical)", j, i), arr, s, loc, "true"))
					break outer
				}
			}
		}
	}
	return issues
}

func validateString(str string, s *Schema, loc string) []Issue {
	var issues []Issue
	n := uint64(utf8.RuneCountInString(str))
	if s.MinLength != nil && n < *s.MinLength {
		issues = append(issues, boundIssue("minLength", fmt.Sprintf("must NOT have fewer than %d characters but had %d", *s.MinLength, n), str, s, loc, fmt.Sprint(*s.MinLength)))
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		issues = append(issues, boundIssue("maxLength", fmt.Sprintf("must NOT have more than %d characters but had %d", *s.MaxLength, n), str, s, loc, fmt.Sprint(*s.MaxLength)))
	}
	if s.Pattern != "" {
		// Patterns are checked at load time; an invalid one here is skipped.
		if re, err := regexp.Compile(s.Pattern); err == nil && !re.MatchString(str) {
			issues = append(issues, boundIssue("pattern", fmt.Sprintf("must match pattern \"%s\" but was %s", s.Pattern, describe(str)), str, s, loc, s.Pattern))
		}
	}
	if s.Format != "" {
		if err := checkStringFormat(s.Format, str); err != nil {
			issues = append(issues, boundIssue("format", fmt.Sprintf("must match format \"%s\": %v", s.Format, err), str, s, loc, s.Format))
		}
	}
	return issues
}

func validateNumber(v any, f float64, s *Schema, loc string) []Issue {
	var issues []Issue
	if s.Minimum != nil {
		min := *s.Minimum
		if s.ExclusiveMinimum && f <= min {
			issues = append(issues, boundIssue("exclusiveMinimum", fmt.Sprintf("must be > %s but was %s", formatFloat(min), describe(v)), v, s, loc, formatFloat(min)))
		} else if !s.ExclusiveMinimum && f < min {
			issues = append(issues, boundIssue("minimum", fmt.Sprintf("must be >= %s but was %s", formatFloat(min), describe(v)), v, s, loc, formatFloat(min)))
		}
	}
	if s.Maximum != nil {
		max := *s.Maximum
		if s.ExclusiveMaximum && f >= max {
			issues = append(issues, boundIssue("exclusiveMaximum", fmt.Sprintf("must be < %s but was %s", formatFloat(max), describe(v)), v, s, loc, formatFloat(max)))
		} else if !s.ExclusiveMaximum && f > max {
			issues = append(issues, boundIssue("maximum", fmt.Sprintf("must be <= %s but was %s", formatFloat(max), describe(v)), v, s, loc, formatFloat(max)))
		}
	}
	if s.MultipleOf != nil && *s.MultipleOf > 0 {
		q := f / *s.MultipleOf
		if math.Abs(q-math.Round(q)) > 1e-9 {
			issues = append(issues, boundIssue("multipleOf", fmt.Sprintf("must be multiple of %s but was %s", formatFloat(*s.MultipleOf), describe(v)), v, s, loc, formatFloat(*s.MultipleOf)))
		}
	}
	if s.Format != "" {
		if err := checkNumberFormat(s.Format, f); err != nil {
			issues = append(issues, boundIssue("format", fmt.Sprintf("must match format \"%s\": %v", s.Format, err), v, s, loc, s.Format))
		}
	}
	return issues
}

func boundIssue(keyword, msg string, v any, s *Schema, loc, bound string) Issue {
	return Issue{
		Kind:           IssueIncompatible,
		Keyword:        keyword,
		Message:        msg,
		ValueLocation:  loc,
		SchemaLocation: JoinLocation(s.Location, keyword),
		Value:          v,
		Constraint:     keyword + ": " + bound,
	}
}
