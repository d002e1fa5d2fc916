package schema

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64    { return &v }
func f64(v float64) *float64 { return &v }

func newMatcher(t *testing.T, policy Policy, defs Definitions) *Matcher {
	t.Helper()
	m, err := NewMatcher(Options{AdditionalProperties: policy, Definitions: defs})
	require.NoError(t, err)
	return m
}

func userSchema() *Schema {
	return &Schema{
		Kind:     KindObject,
		Location: "components.schemas.User",
		Properties: map[string]*Schema{
			"name":  {Kind: KindString, Location: "components.schemas.User.properties.name"},
			"age":   {Kind: KindInteger, Location: "components.schemas.User.properties.age", Minimum: f64(0)},
			"email": {Kind: KindString, Format: "email", Location: "components.schemas.User.properties.email"},
		},
		Required: []string{"name", "age", "email"},
		AdditionalProperties: Additional{
			Policy:   AdditionalForbidden,
			Location: "components.schemas.User.additionalProperties",
		},
	}
}

func TestNewMatcherRequiresPolicy(t *testing.T) {
	_, err := NewMatcher(Options{})
	assert.ErrorIs(t, err, ErrPolicyUnset)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Strict")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParsePolicy("permissive")
	require.NoError(t, err)
	assert.Equal(t, PolicyPermissive, p)

	_, err = ParsePolicy("maybe")
	assert.Error(t, err)
}

func TestValidateObject(t *testing.T) {
	m := newMatcher(t, PolicyPermissive, nil)

	tests := []struct {
		name      string
		value     map[string]any
		wantKinds []IssueKind
		wantMsgs  []string
	}{
		{
			name:  "exact match",
			value: map[string]any{"name": "John Doe", "age": json.Number("30"), "email": "john.doe@example.com"},
		},
		{
			name:      "missing required",
			value:     map[string]any{"name": "John Doe", "age": json.Number("30")},
			wantKinds: []IssueKind{IssueMissing},
			wantMsgs:  []string{"must have required property 'email'"},
		},
		{
			name:      "additional property",
			value:     map[string]any{"name": "John Doe", "age": json.Number("30"), "email": "john.doe@example.com", "phoneNumber": "555"},
			wantKinds: []IssueKind{IssueUnknown},
			wantMsgs:  []string{"must NOT have additional properties - phoneNumber"},
		},
		{
			name:      "wrong type",
			value:     map[string]any{"name": "John Doe", "age": "thirty", "email": "john.doe@example.com"},
			wantKinds: []IssueKind{IssueIncompatible},
			wantMsgs:  []string{"must be integer but was string"},
		},
		{
			name:      "below minimum",
			value:     map[string]any{"name": "John Doe", "age": json.Number("-1"), "email": "john.doe@example.com"},
			wantKinds: []IssueKind{IssueIncompatible},
			wantMsgs:  []string{"must be >= 0 but was -1"},
		},
		{
			name:      "bad email",
			value:     map[string]any{"name": "John Doe", "age": json.Number("30"), "email": "nope"},
			wantKinds: []IssueKind{IssueIncompatible},
			wantMsgs:  []string{`must match format "email": not an email address`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := m.Validate(tt.value, userSchema(), "body")
			require.Len(t, issues, len(tt.wantKinds))
			for i, is := range issues {
				assert.Equal(t, tt.wantKinds[i], is.Kind)
				assert.Equal(t, tt.wantMsgs[i], is.Message)
			}
		})
	}
}

func TestValidateLocations(t *testing.T) {
	m := newMatcher(t, PolicyPermissive, nil)
	value := map[string]any{"name": "John Doe", "age": json.Number("30"), "email": "john.doe@example.com", "phoneNumber": "555"}

	issues := m.Validate(value, userSchema(), "interaction[0].request.body")
	require.Len(t, issues, 1)
	assert.Equal(t, "interaction[0].request.body.phoneNumber", issues[0].ValueLocation)
	assert.Equal(t, "components.schemas.User.additionalProperties", issues[0].SchemaLocation)
	assert.Equal(t, "555", issues[0].Value)
}

func TestAdditionalPropertiesPolicy(t *testing.T) {
	s := &Schema{
		Kind:       KindObject,
		Location:   "s",
		Properties: map[string]*Schema{"a": {Kind: KindString}},
	}
	value := map[string]any{"a": "x", "b": "y"}

	assert.Empty(t, newMatcher(t, PolicyPermissive, nil).Validate(value, s, ""))

	issues := newMatcher(t, PolicyStrict, nil).Validate(value, s, "")
	require.Len(t, issues, 1)
	assert.Equal(t, IssueUnknown, issues[0].Kind)
	assert.Equal(t, "s.additionalProperties", issues[0].SchemaLocation)

	s.AdditionalProperties = Additional{Policy: AdditionalAllowed}
	assert.Empty(t, newMatcher(t, PolicyStrict, nil).Validate(value, s, ""))

	s.AdditionalProperties = Additional{Policy: AdditionalSchema, Schema: &Schema{Kind: KindInteger}}
	issues = newMatcher(t, PolicyPermissive, nil).Validate(value, s, "")
	require.Len(t, issues, 1)
	assert.Equal(t, "b", issues[0].ValueLocation)
	assert.Equal(t, "type", issues[0].Keyword)
}

// Every extra key under additionalProperties false yields a finding.
func TestAdditionalPropertiesForbiddenIsMonotonic(t *testing.T) {
	m := newMatcher(t, PolicyPermissive, nil)
	base := map[string]any{"name": "a", "age": json.Number("1"), "email": "a@b.co"}
	for _, extra := range []string{"x", "zzz", "Name", "AGE"} {
		value := map[string]any{}
		for k, v := range base {
			value[k] = v
		}
		value[extra] = true
		issues := m.Validate(value, userSchema(), "")
		assert.NotEmpty(t, issues, extra)
	}
}

func TestSubsetOfPropertiesPasses(t *testing.T) {
	s := &Schema{
		Kind: KindObject,
		Properties: map[string]*Schema{
			"id":   {Kind: KindInteger},
			"name": {Kind: KindString},
			"tags": {Kind: KindArray, Items: &Schema{Kind: KindString}},
		},
		Required:             []string{"id"},
		AdditionalProperties: Additional{Policy: AdditionalForbidden},
	}
	m := newMatcher(t, PolicyStrict, nil)
	for _, value := range []map[string]any{
		{"id": json.Number("1")},
		{"id": json.Number("1"), "name": "n"},
		{"id": json.Number("1"), "tags": []any{"a", "b"}},
	} {
		assert.Empty(t, m.Validate(value, s, ""))
	}
}

func TestReadOnlyAndWriteOnly(t *testing.T) {
	s := &Schema{
		Kind: KindObject,
		Properties: map[string]*Schema{
			"id":       {Kind: KindInteger, ReadOnly: true},
			"password": {Kind: KindString, WriteOnly: true},
		},
		Required: []string{"id", "password"},
	}
	m := newMatcher(t, PolicyPermissive, nil)

	req := m.WithDirection(DirectionRequest).Validate(map[string]any{"password": "x"}, s, "")
	assert.Empty(t, req)

	resp := m.WithDirection(DirectionResponse).Validate(map[string]any{"id": json.Number("1")}, s, "")
	assert.Empty(t, resp)

	resp = m.WithDirection(DirectionResponse).Validate(map[string]any{"password": "x"}, s, "")
	require.Len(t, resp, 1)
	assert.Equal(t, "must have required property 'id'", resp[0].Message)
}

func TestValidateScalars(t *testing.T) {
	m := newMatcher(t, PolicyPermissive, nil)

	tests := []struct {
		name    string
		schema  *Schema
		value   any
		keyword string
	}{
		{"integer accepts integral float", &Schema{Kind: KindInteger}, 30.0, ""},
		{"integer rejects fraction", &Schema{Kind: KindInteger}, json.Number("1.5"), "type"},
		{"number accepts integer", &Schema{Kind: KindNumber}, json.Number("3"), ""},
		{"boolean rejects string", &Schema{Kind: KindBoolean}, "true", "type"},
		{"null rejected", &Schema{Kind: KindString}, nil, "type"},
		{"nullable accepts null", &Schema{Kind: KindString, Nullable: true}, nil, ""},
		{"enum", &Schema{Kind: KindString, Enum: []any{"HR", "IT"}}, "Sales", "enum"},
		{"enum numeric", &Schema{Kind: KindInteger, Enum: []any{json.Number("1"), json.Number("2")}}, 2.0, ""},
		{"minLength", &Schema{Kind: KindString, MinLength: u64(3)}, "ab", "minLength"},
		{"maxLength counts runes", &Schema{Kind: KindString, MaxLength: u64(2)}, "éé", ""},
		{"pattern", &Schema{Kind: KindString, Pattern: "^[a-z]+$"}, "ABC", "pattern"},
		{"exclusiveMaximum", &Schema{Kind: KindNumber, Maximum: f64(10), ExclusiveMaximum: true}, json.Number("10"), "exclusiveMaximum"},
		{"maximum", &Schema{Kind: KindNumber, Maximum: f64(10)}, json.Number("10"), ""},
		{"multipleOf", &Schema{Kind: KindNumber, MultipleOf: f64(0.5)}, json.Number("1.25"), "multipleOf"},
		{"multipleOf ok", &Schema{Kind: KindNumber, MultipleOf: f64(0.1)}, json.Number("0.3"), ""},
		{"int32 range", &Schema{Kind: KindInteger, Format: "int32"}, json.Number("3000000000"), "format"},
		{"not", &Schema{Kind: KindAny, Not: &Schema{Kind: KindString}}, "x", "not"},
		{"minItems", &Schema{Kind: KindArray, MinItems: u64(1)}, []any{}, "minItems"},
		{"uniqueItems", &Schema{Kind: KindArray, UniqueItems: true}, []any{json.Number("1"), 1.0}, "uniqueItems"},
		{"maxProperties", &Schema{Kind: KindObject, MaxProperties: u64(1)}, map[string]any{"a": 1, "b": 2}, "maxProperties"},
		{"any accepts anything", &Schema{Kind: KindAny}, map[string]any{"a": []any{}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := m.Validate(tt.value, tt.schema, "v")
			if tt.keyword == "" {
				assert.Empty(t, issues)
				return
			}
			require.Len(t, issues, 1)
			assert.Equal(t, tt.keyword, issues[0].Keyword)
			assert.Equal(t, IssueIncompatible, issues[0].Kind)
		})
	}
}

func TestValidateArrayItemsLocation(t *testing.T) {
	m := newMatcher(t, PolicyPermissive, nil)
	s := &Schema{Kind: KindArray, Items: &Schema{Kind: KindInteger}}

	issues := m.Validate([]any{json.Number("1"), "two", json.Number("3")}, s, "body.ids")
	require.Len(t, issues, 1)
	assert.Equal(t, "body.ids[1]", issues[0].ValueLocation)
}

func TestRecursiveSchema(t *testing.T) {
	defs := Definitions{}
	node := &Schema{
		Kind:     KindObject,
		Location: "components.schemas.Node",
		Origin:   "#/components/schemas/Node",
		Properties: map[string]*Schema{
			"value":    {Kind: KindInteger},
			"children": {Kind: KindArray, Items: &Schema{Kind: KindRef, Ref: "#/components/schemas/Node"}},
		},
		Required: []string{"value"},
	}
	defs["#/components/schemas/Node"] = node
	m := newMatcher(t, PolicyPermissive, defs)

	tree := map[string]any{
		"value": json.Number("1"),
		"children": []any{
			map[string]any{"value": json.Number("2"), "children": []any{
				map[string]any{"value": json.Number("3")},
			}},
			map[string]any{"value": "bad"},
		},
	}
	issues := m.Validate(tree, node, "body")
	require.Len(t, issues, 1)
	assert.Equal(t, "body.children[1].value", issues[0].ValueLocation)
}

func TestRefReentryAtSameLocationMatches(t *testing.T) {
	defs := Definitions{}
	// A = anyOf[ref A, string]: re-entry at the same value must not loop.
	defs["#/A"] = &Schema{
		Kind:     KindComposite,
		Operator: OpAnyOf,
		Children: []*Schema{{Kind: KindRef, Ref: "#/A"}, {Kind: KindString}},
	}
	m := newMatcher(t, PolicyPermissive, defs)
	assert.Empty(t, m.Validate(json.Number("1"), &Schema{Kind: KindRef, Ref: "#/A"}, ""))
}

func TestFormats(t *testing.T) {
	tests := []struct {
		format string
		good   string
		bad    string
	}{
		{"date-time", "2024-01-02T15:04:05Z", "2024-01-02"},
		{"date", "2024-01-02", "2024/01/02"},
		{"time", "15:04:05Z", "25:00"},
		{"email", "john.doe@example.com", "John <john@example.com>"},
		{"uuid", "123e4567-e89b-12d3-a456-426614174000", "123e4567e89b12d3a456426614174000"},
		{"uri", "https://example.com/x", "/relative"},
		{"hostname", "api.example.com", "-bad-.com"},
		{"ipv4", "10.0.0.1", "::1"},
		{"ipv6", "::1", "10.0.0.1"},
		{"byte", "aGVsbG8=", "***"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.NoError(t, checkStringFormat(tt.format, tt.good))
			assert.Error(t, checkStringFormat(tt.format, tt.bad))
		})
	}
	assert.NoError(t, checkStringFormat("made-up", "anything"))
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		schema *Schema
		want   any
	}{
		{"integer", []string{"42"}, &Schema{Kind: KindInteger}, json.Number("42")},
		{"not a number", []string{"abc"}, &Schema{Kind: KindInteger}, "abc"},
		{"boolean", []string{"true"}, &Schema{Kind: KindBoolean}, true},
		{"string", []string{"42"}, &Schema{Kind: KindString}, "42"},
		{"comma array", []string{"1,2"}, &Schema{Kind: KindArray, Items: &Schema{Kind: KindInteger}}, []any{json.Number("1"), json.Number("2")}},
		{"repeated array", []string{"a", "b"}, &Schema{Kind: KindArray, Items: &Schema{Kind: KindString}}, []any{"a", "b"}},
		{"first of many", []string{"1", "2"}, &Schema{Kind: KindInteger}, json.Number("1")},
		{"absent", nil, &Schema{Kind: KindInteger}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.values, tt.schema, nil))
		})
	}
}
