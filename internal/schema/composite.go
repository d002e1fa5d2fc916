package schema

import (
	"fmt"
	"strings"
)

func (m *Matcher) validateComposite(st *state, v any, s *Schema, loc string, scope *objectScope) []Issue {
	switch s.Operator {
	case OpAllOf:
		return m.validateAllOf(st, v, s, loc, scope)
	case OpOneOf, OpAnyOf:
		return m.validateBranches(st, v, s, loc, scope)
	}
	return nil
}

// mergedAllOf is an allOf flattened into one concrete node plus the
// constraints that could not be folded into it.
type mergedAllOf struct {
	node     *Schema
	residual []*Schema
	// branchNames are property names declared by oneOf/anyOf members.
	branchNames map[string]struct{}
	leaves      int
}

func (m *Matcher) validateAllOf(st *state, v any, s *Schema, loc string, scope *objectScope) []Issue {
	merged, err := m.mergeAllOf(s)
	if err != nil {
		// Members contradict each other; report each member on its own.
		var issues []Issue
		for _, c := range s.Children {
			issues = append(issues, m.validate(st, v, c, loc, scope)...)
		}
		return issues
	}
	if merged.leaves == 1 && len(merged.residual) == 0 {
		return m.validate(st, v, merged.node, loc, scope)
	}

	inner := &objectScope{keyword: "unevaluatedProperties", evaluated: map[string]struct{}{}}
	if scope != nil {
		for k := range scope.evaluated {
			inner.evaluated[k] = struct{}{}
		}
	}
	for k := range merged.branchNames {
		inner.evaluated[k] = struct{}{}
	}
	issues := m.validate(st, v, merged.node, loc, inner)

	residualScope := &objectScope{keyword: inner.keyword, evaluated: map[string]struct{}{}, deferUnspecified: true}
	for k := range inner.evaluated {
		residualScope.evaluated[k] = struct{}{}
	}
	for k := range merged.node.Properties {
		residualScope.evaluated[k] = struct{}{}
	}
	for _, r := range merged.residual {
		if r.Kind == KindComposite {
			issues = append(issues, m.validateComposite(st, v, r, loc, residualScope)...)
			continue
		}
		issues = append(issues, m.validate(st, v, r, loc, residualScope)...)
	}
	return issues
}

// mergeAllOf folds the members of an allOf into a single node. Nested allOf
// members are flattened and references expanded; a reference already being
// merged is skipped.
func (m *Matcher) mergeAllOf(s *Schema) (*mergedAllOf, error) {
	out := &mergedAllOf{
		node: &Schema{
			Kind:     KindAny,
			Location: s.Location,
			Origin:   s.Origin,
			Nullable: true,
		},
		branchNames: map[string]struct{}{},
	}
	var leaves []*Schema
	m.flattenAllOf(s, map[string]bool{}, &leaves)
	for _, leaf := range leaves {
		if leaf.Kind == KindComposite {
			// oneOf/anyOf members are checked on their own.
			out.residual = append(out.residual, leaf)
			m.collectPropertyNames(leaf, map[string]bool{}, out.branchNames)
			continue
		}
		out.leaves++
		if err := out.fold(leaf); err != nil {
			return nil, err
		}
	}
	if out.leaves == 1 && len(out.residual) == 0 {
		out.node = leaves[0]
	}
	return out, nil
}

func (m *Matcher) flattenAllOf(s *Schema, chain map[string]bool, leaves *[]*Schema) {
	for _, c := range s.Children {
		if c == nil {
			continue
		}
		if c.Kind == KindRef {
			if chain[c.Ref] {
				continue
			}
			target, ok := m.opts.Definitions[c.Ref]
			if !ok {
				continue
			}
			chain[c.Ref] = true
			m.flattenNode(target, chain, leaves)
			delete(chain, c.Ref)
			continue
		}
		m.flattenNode(c, chain, leaves)
	}
}

func (m *Matcher) flattenNode(c *Schema, chain map[string]bool, leaves *[]*Schema) {
	if c.Kind == KindRef {
		m.flattenAllOf(&Schema{Children: []*Schema{c}}, chain, leaves)
		return
	}
	if c.Kind == KindComposite && c.Operator == OpAllOf && !c.Nullable {
		m.flattenAllOf(c, chain, leaves)
		return
	}
	*leaves = append(*leaves, c)
}

// collectPropertyNames gathers every property name a schema can declare,
// through references and composites.
func (m *Matcher) collectPropertyNames(s *Schema, seen map[string]bool, names map[string]struct{}) {
	if s == nil {
		return
	}
	if s.Kind == KindRef {
		if seen[s.Ref] {
			return
		}
		seen[s.Ref] = true
		m.collectPropertyNames(m.opts.Definitions[s.Ref], seen, names)
		return
	}
	for k := range s.Properties {
		names[k] = struct{}{}
	}
	for _, c := range s.Children {
		m.collectPropertyNames(c, seen, names)
	}
}

func (out *mergedAllOf) fold(leaf *Schema) error {
	acc := out.node
	kind, err := IntersectKinds(acc.Kind, leaf.Kind)
	if err != nil {
		return err
	}
	acc.Kind = kind
	acc.Nullable = acc.Nullable && (leaf.Nullable || leaf.Kind == KindAny || leaf.Kind == KindNull)
	acc.ReadOnly = acc.ReadOnly || leaf.ReadOnly
	acc.WriteOnly = acc.WriteOnly || leaf.WriteOnly

	if len(leaf.Enum) > 0 {
		if len(acc.Enum) == 0 {
			acc.Enum = leaf.Enum
		} else {
			var both []any
			for _, a := range acc.Enum {
				for _, b := range leaf.Enum {
					if equalValues(a, b) {
						both = append(both, a)
						break
					}
				}
			}
			if len(both) == 0 {
				return fmt.Errorf("enum values of %s do not overlap", leaf.Location)
			}
			acc.Enum = both
		}
	}

	constraintOnly := &Schema{Kind: KindAny, Location: leaf.Location}
	needResidual := false
	if leaf.Format != "" {
		if acc.Format == "" || acc.Format == leaf.Format {
			acc.Format = leaf.Format
		} else {
			constraintOnly.Format, needResidual = leaf.Format, true
		}
	}
	if leaf.Pattern != "" {
		if acc.Pattern == "" || acc.Pattern == leaf.Pattern {
			acc.Pattern = leaf.Pattern
		} else {
			constraintOnly.Pattern, needResidual = leaf.Pattern, true
		}
	}
	if leaf.MultipleOf != nil {
		if acc.MultipleOf == nil || *acc.MultipleOf == *leaf.MultipleOf {
			acc.MultipleOf = leaf.MultipleOf
		} else {
			constraintOnly.MultipleOf, needResidual = leaf.MultipleOf, true
		}
	}
	if leaf.Not != nil {
		if acc.Not == nil {
			acc.Not = leaf.Not
		} else {
			constraintOnly.Not, needResidual = leaf.Not, true
		}
	}
	if needResidual {
		out.residual = append(out.residual, constraintOnly)
	}

	acc.MinLength = maxBound(acc.MinLength, leaf.MinLength)
	acc.MaxLength = minBound(acc.MaxLength, leaf.MaxLength)
	acc.MinItems = maxBound(acc.MinItems, leaf.MinItems)
	acc.MaxItems = minBound(acc.MaxItems, leaf.MaxItems)
	acc.MinProperties = maxBound(acc.MinProperties, leaf.MinProperties)
	acc.MaxProperties = minBound(acc.MaxProperties, leaf.MaxProperties)
	acc.UniqueItems = acc.UniqueItems || leaf.UniqueItems

	if leaf.Minimum != nil {
		if acc.Minimum == nil || *leaf.Minimum > *acc.Minimum {
			acc.Minimum, acc.ExclusiveMinimum = leaf.Minimum, leaf.ExclusiveMinimum
		} else if *leaf.Minimum == *acc.Minimum {
			acc.ExclusiveMinimum = acc.ExclusiveMinimum || leaf.ExclusiveMinimum
		}
	}
	if leaf.Maximum != nil {
		if acc.Maximum == nil || *leaf.Maximum < *acc.Maximum {
			acc.Maximum, acc.ExclusiveMaximum = leaf.Maximum, leaf.ExclusiveMaximum
		} else if *leaf.Maximum == *acc.Maximum {
			acc.ExclusiveMaximum = acc.ExclusiveMaximum || leaf.ExclusiveMaximum
		}
	}

	if leaf.Items != nil {
		acc.Items = conjoin(acc.Items, leaf.Items)
	}

	for name, prop := range leaf.Properties {
		if acc.Properties == nil {
			acc.Properties = map[string]*Schema{}
		}
		acc.Properties[name] = conjoin(acc.Properties[name], prop)
	}
	for _, name := range leaf.Required {
		if !containsString(acc.Required, name) {
			acc.Required = append(acc.Required, name)
		}
	}

	if describesObject(leaf) {
		acc.AdditionalProperties = mergeAdditional(acc.AdditionalProperties, leaf)
	}
	return nil
}

// IntersectKinds returns the kind satisfying both a and b.
func IntersectKinds(a, b Kind) (Kind, error) {
	switch {
	case a == b:
		return a, nil
	case a == KindAny:
		return b, nil
	case b == KindAny:
		return a, nil
	case a == KindNumber && b == KindInteger, a == KindInteger && b == KindNumber:
		return KindInteger, nil
	}
	return KindAny, fmt.Errorf("allOf combines incompatible types %s and %s", a, b)
}

func describesObject(s *Schema) bool {
	return s.Kind == KindObject || len(s.Properties) > 0 || s.AdditionalProperties.Policy != AdditionalUnspecified
}

// mergeAdditional keeps the most restrictive additionalProperties:
// forbidden, then a schema, then unspecified, then allowed.
func mergeAdditional(acc Additional, leaf *Schema) Additional {
	next := leaf.AdditionalProperties
	if next.Location == "" {
		next.Location = JoinLocation(leaf.Location, "additionalProperties")
	}
	rank := func(p AdditionalPolicy) int {
		switch p {
		case AdditionalForbidden:
			return 3
		case AdditionalSchema:
			return 2
		case AdditionalUnspecified:
			return 1
		case AdditionalAllowed:
			return 0
		}
		return 0
	}
	if acc.Location == "" {
		return next
	}
	if acc.Policy == AdditionalSchema && next.Policy == AdditionalSchema {
		acc.Schema = conjoin(acc.Schema, next.Schema)
		return acc
	}
	if rank(next.Policy) > rank(acc.Policy) {
		return next
	}
	return acc
}

// conjoin returns a node requiring both a and b.
func conjoin(a, b *Schema) *Schema {
	if a == nil {
		return b
	}
	if b == nil || a == b {
		return a
	}
	return &Schema{
		Kind:     KindComposite,
		Operator: OpAllOf,
		Location: a.Location,
		Children: []*Schema{a, b},
	}
}

func maxBound(a, b *uint64) *uint64 {
	if a == nil || (b != nil && *b > *a) {
		return b
	}
	return a
}

func minBound(a, b *uint64) *uint64 {
	if a == nil || (b != nil && *b < *a) {
		return b
	}
	return a
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (m *Matcher) validateBranches(st *state, v any, s *Schema, loc string, scope *objectScope) []Issue {
	op := s.Operator.String()
	if i := m.discriminate(s, v); i >= 0 {
		return m.validate(st, v, s.Children[i], loc, scope)
	}

	results := make([][]Issue, len(s.Children))
	var matched []int
	for i, c := range s.Children {
		results[i] = m.validate(st, v, c, loc, scope)
		if len(results[i]) == 0 {
			matched = append(matched, i)
		}
	}
	if len(s.Children) == 0 {
		return nil
	}

	switch {
	case s.Operator == OpAnyOf && len(matched) > 0:
		return nil
	case s.Operator == OpOneOf && len(matched) == 1:
		return nil
	case s.Operator == OpOneOf && len(matched) > 1:
		names := make([]string, len(matched))
		for i, idx := range matched {
			names[i] = fmt.Sprintf("%s[%d]", op, idx)
		}
		return []Issue{{
			Kind:           IssueIncompatible,
			Keyword:        op,
			Message:        fmt.Sprintf("must match exactly one schema in oneOf but matched %s", strings.Join(names, " and ")),
			ValueLocation:  loc,
			SchemaLocation: JoinLocation(s.Location, op),
			Value:          v,
			Constraint:     "oneOf",
		}}
	}

	// Report the branch with the fewest issues; ties go to the first.
	nearest := 0
	for i := range results {
		if len(results[i]) < len(results[nearest]) {
			nearest = i
		}
	}
	want := "exactly one schema in oneOf"
	if s.Operator == OpAnyOf {
		want = "at least one schema in anyOf"
	}
	return []Issue{{
		Kind:           commonKind(results[nearest]),
		Keyword:        op,
		Message:        fmt.Sprintf("must match %s; nearest branch %s[%d]: %s", want, op, nearest, summarize(loc, results[nearest])),
		ValueLocation:  loc,
		SchemaLocation: JoinLocation(s.Location, op),
		Value:          v,
		Constraint:     op,
	}}
}

// discriminate returns the branch selected by the discriminator, or -1.
func (m *Matcher) discriminate(s *Schema, v any) int {
	if s.Discriminator == nil || s.Discriminator.PropertyName == "" {
		return -1
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return -1
	}
	tag, ok := obj[s.Discriminator.PropertyName].(string)
	if !ok {
		return -1
	}
	if ref, ok := s.Discriminator.Mapping[tag]; ok {
		for i, c := range s.Children {
			if c.Origin == ref || (c.Kind == KindRef && c.Ref == ref) {
				return i
			}
		}
	}
	for i, c := range s.Children {
		name := c.Origin
		if c.Kind == KindRef {
			name = c.Ref
		}
		if name != "" && strings.HasSuffix(name, "/"+tag) {
			return i
		}
	}
	return -1
}

func commonKind(issues []Issue) IssueKind {
	if len(issues) == 0 {
		return IssueIncompatible
	}
	k := issues[0].Kind
	for _, is := range issues[1:] {
		if is.Kind != k {
			return IssueIncompatible
		}
	}
	return k
}
