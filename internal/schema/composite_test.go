package schema

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personParts() (*Schema, *Schema) {
	a := &Schema{
		Kind:                 KindObject,
		Location:             "components.schemas.A",
		Properties:           map[string]*Schema{"name": {Kind: KindString}},
		Required:             []string{"name"},
		AdditionalProperties: Additional{Policy: AdditionalForbidden, Location: "components.schemas.A.additionalProperties"},
	}
	b := &Schema{
		Kind:       KindObject,
		Location:   "components.schemas.B",
		Properties: map[string]*Schema{"age": {Kind: KindInteger, Maximum: f64(150)}},
		Required:   []string{"age"},
	}
	return a, b
}

func messages(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.ValueLocation + ": " + is.Message
	}
	return out
}

func TestAllOfMatchesMergedSchema(t *testing.T) {
	a, b := personParts()
	allOf := &Schema{Kind: KindComposite, Operator: OpAllOf, Location: "components.schemas.P", Children: []*Schema{a, b}}
	manual := &Schema{
		Kind:     KindObject,
		Location: "components.schemas.P",
		Properties: map[string]*Schema{
			"name": {Kind: KindString},
			"age":  {Kind: KindInteger, Maximum: f64(150)},
		},
		Required:             []string{"name", "age"},
		AdditionalProperties: Additional{Policy: AdditionalForbidden, Location: "components.schemas.A.additionalProperties"},
	}
	m := newMatcher(t, PolicyPermissive, nil)

	values := []map[string]any{
		{"name": "x", "age": json.Number("3")},
		{"name": "x"},
		{"age": json.Number("200")},
		{"name": "x", "age": json.Number("3"), "extra": true},
		{"name": json.Number("1"), "age": "old", "z": nil},
	}
	for _, v := range values {
		got := m.Validate(v, allOf, "body")
		want := m.Validate(v, manual, "body")
		assert.Equal(t, messages(want), messages(got))
	}
}

func TestAllOfExtraKeyUsesUnevaluatedKeyword(t *testing.T) {
	a, b := personParts()
	allOf := &Schema{Kind: KindComposite, Operator: OpAllOf, Children: []*Schema{a, b}}
	m := newMatcher(t, PolicyPermissive, nil)

	issues := m.Validate(map[string]any{"name": "x", "age": json.Number("3"), "phoneNumber": "1"}, allOf, "body")
	require.Len(t, issues, 1)
	assert.Equal(t, "unevaluatedProperties", issues[0].Keyword)
	assert.Equal(t, IssueUnknown, issues[0].Kind)
	assert.Equal(t, "must NOT have additional properties - phoneNumber", issues[0].Message)
	assert.Equal(t, "components.schemas.A.additionalProperties", issues[0].SchemaLocation)
}

func TestAllOfSingleMemberIsTransparent(t *testing.T) {
	a, _ := personParts()
	allOf := &Schema{Kind: KindComposite, Operator: OpAllOf, Children: []*Schema{a}}
	m := newMatcher(t, PolicyPermissive, nil)

	v := map[string]any{"extra": json.Number("1")}
	assert.Equal(t, m.Validate(v, a, "b"), m.Validate(v, allOf, "b"))
}

func TestAllOfThroughRefs(t *testing.T) {
	a, b := personParts()
	defs := Definitions{"#/A": a, "#/B": b}
	allOf := &Schema{
		Kind:     KindComposite,
		Operator: OpAllOf,
		Children: []*Schema{{Kind: KindRef, Ref: "#/A"}, {Kind: KindRef, Ref: "#/B"}},
	}
	m := newMatcher(t, PolicyStrict, defs)

	assert.Empty(t, m.Validate(map[string]any{"name": "x", "age": json.Number("1")}, allOf, ""))
	issues := m.Validate(map[string]any{"name": "x"}, allOf, "")
	require.Len(t, issues, 1)
	assert.Equal(t, "must have required property 'age'", issues[0].Message)
}

func TestAllOfConflictingTypesFallsBack(t *testing.T) {
	allOf := &Schema{
		Kind:     KindComposite,
		Operator: OpAllOf,
		Children: []*Schema{{Kind: KindString}, {Kind: KindInteger}},
	}
	m := newMatcher(t, PolicyPermissive, nil)

	issues := m.Validate("x", allOf, "")
	require.Len(t, issues, 1)
	assert.Equal(t, "must be integer but was string", issues[0].Message)
}

func TestAllOfWithOneOfMember(t *testing.T) {
	base := &Schema{
		Kind:                 KindObject,
		Properties:           map[string]*Schema{"kind": {Kind: KindString}},
		Required:             []string{"kind"},
		AdditionalProperties: Additional{Policy: AdditionalForbidden},
	}
	cat := &Schema{Kind: KindObject, Properties: map[string]*Schema{"meows": {Kind: KindBoolean}}, Required: []string{"meows"}}
	dog := &Schema{Kind: KindObject, Properties: map[string]*Schema{"barks": {Kind: KindBoolean}}, Required: []string{"barks"}}
	pet := &Schema{
		Kind:     KindComposite,
		Operator: OpAllOf,
		Children: []*Schema{base, {Kind: KindComposite, Operator: OpOneOf, Children: []*Schema{cat, dog}}},
	}
	m := newMatcher(t, PolicyStrict, nil)

	assert.Empty(t, m.Validate(map[string]any{"kind": "cat", "meows": true}, pet, ""))
	issues := m.Validate(map[string]any{"kind": "cat", "meows": true, "wings": json.Number("2")}, pet, "")
	require.Len(t, issues, 1)
	assert.Equal(t, "must NOT have additional properties - wings", issues[0].Message)
}

func TestOneOfNearestMiss(t *testing.T) {
	card := &Schema{
		Kind:       KindObject,
		Properties: map[string]*Schema{"number": {Kind: KindString}, "cvc": {Kind: KindString}},
		Required:   []string{"number", "cvc"},
	}
	bank := &Schema{
		Kind:       KindObject,
		Properties: map[string]*Schema{"iban": {Kind: KindString}},
		Required:   []string{"iban"},
	}
	oneOf := &Schema{Kind: KindComposite, Operator: OpOneOf, Location: "payment", Children: []*Schema{card, bank}}
	m := newMatcher(t, PolicyPermissive, nil)

	issues := m.Validate(map[string]any{"number": "4111"}, oneOf, "body.payment")
	require.Len(t, issues, 1)
	assert.Equal(t, "oneOf", issues[0].Keyword)
	assert.Equal(t, IssueMissing, issues[0].Kind)
	assert.Equal(t, "must match exactly one schema in oneOf; nearest branch oneOf[0]: must have required property 'cvc'", issues[0].Message)
	assert.Equal(t, "payment.oneOf", issues[0].SchemaLocation)

	// Fewer issues wins over position.
	issues = m.Validate(map[string]any{}, oneOf, "body.payment")
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "nearest branch oneOf[1]")
}

func TestOneOfMatchingSeveralBranches(t *testing.T) {
	oneOf := &Schema{
		Kind:     KindComposite,
		Operator: OpOneOf,
		Children: []*Schema{{Kind: KindNumber}, {Kind: KindInteger}},
	}
	m := newMatcher(t, PolicyPermissive, nil)

	issues := m.Validate(json.Number("1"), oneOf, "")
	require.Len(t, issues, 1)
	assert.Equal(t, "must match exactly one schema in oneOf but matched oneOf[0] and oneOf[1]", issues[0].Message)

	assert.Empty(t, m.Validate(json.Number("1.5"), oneOf, ""))
}

func TestAnyOf(t *testing.T) {
	anyOf := &Schema{
		Kind:     KindComposite,
		Operator: OpAnyOf,
		Children: []*Schema{{Kind: KindString, MaxLength: u64(2)}, {Kind: KindInteger}},
	}
	m := newMatcher(t, PolicyPermissive, nil)

	assert.Empty(t, m.Validate("ab", anyOf, ""))
	assert.Empty(t, m.Validate(json.Number("7"), anyOf, ""))
	issues := m.Validate("abc", anyOf, "")
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "must match at least one schema in anyOf; nearest branch anyOf[0]")
}

func TestDiscriminatorSelectsBranch(t *testing.T) {
	cat := &Schema{
		Kind:       KindObject,
		Origin:     "#/components/schemas/Cat",
		Properties: map[string]*Schema{"petType": {Kind: KindString}, "meows": {Kind: KindBoolean}},
		Required:   []string{"meows"},
	}
	dog := &Schema{
		Kind:       KindObject,
		Origin:     "#/components/schemas/Dog",
		Properties: map[string]*Schema{"petType": {Kind: KindString}, "barks": {Kind: KindBoolean}},
		Required:   []string{"barks"},
	}
	oneOf := &Schema{
		Kind:     KindComposite,
		Operator: OpOneOf,
		Children: []*Schema{cat, dog},
		Discriminator: &Discriminator{
			PropertyName: "petType",
			Mapping:      map[string]string{"doggo": "#/components/schemas/Dog"},
		},
	}
	m := newMatcher(t, PolicyPermissive, nil)

	issues := m.Validate(map[string]any{"petType": "doggo"}, oneOf, "")
	require.Len(t, issues, 1)
	assert.Equal(t, "must have required property 'barks'", issues[0].Message)

	issues = m.Validate(map[string]any{"petType": "Cat"}, oneOf, "")
	require.Len(t, issues, 1)
	assert.Equal(t, "must have required property 'meows'", issues[0].Message)
}

func TestIntersectKinds(t *testing.T) {
	k, err := IntersectKinds(KindNumber, KindInteger)
	require.NoError(t, err)
	assert.Equal(t, KindInteger, k)

	k, err = IntersectKinds(KindAny, KindObject)
	require.NoError(t, err)
	assert.Equal(t, KindObject, k)

	_, err = IntersectKinds(KindString, KindObject)
	assert.Error(t, err)
}
