package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"pact-verifier/internal/schema"
)

var kindByName = map[string]schema.Kind{
	"object":  schema.KindObject,
	"array":   schema.KindArray,
	"string":  schema.KindString,
	"number":  schema.KindNumber,
	"integer": schema.KindInteger,
	"boolean": schema.KindBoolean,
}

// schemaConverter turns kin-openapi schemas into schema trees. Every $ref is
// converted once; a $ref met again while it is still being converted becomes
// a back-reference node.
type schemaConverter struct {
	defs   schema.Definitions
	done   map[string]*schema.Schema
	active map[string]bool
	// nullTyped marks schemas whose type array listed "null" before
	// normalization.
	nullTyped map[*openapi3.Schema]bool
}

func newSchemaConverter() *schemaConverter {
	return &schemaConverter{
		defs:   schema.Definitions{},
		done:   map[string]*schema.Schema{},
		active: map[string]bool{},
	}
}

// refLocation turns "#/components/schemas/Node" into "components.schemas.Node".
func refLocation(ref string) string {
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func (c *schemaConverter) convertRef(ref *openapi3.SchemaRef, loc string) (*schema.Schema, error) {
	if ref == nil {
		return nil, nil
	}
	if ref.Ref == "" {
		if ref.Value == nil {
			return nil, &SpecError{Location: loc, Reason: "empty schema"}
		}
		return c.convert(ref.Value, loc)
	}

	if !strings.HasPrefix(ref.Ref, "#/") {
		return nil, &SpecError{Location: loc, Reason: fmt.Sprintf("external reference %q is not supported", ref.Ref)}
	}
	if c.active[ref.Ref] {
		return &schema.Schema{Kind: schema.KindRef, Ref: ref.Ref, Location: refLocation(ref.Ref)}, nil
	}
	if s, ok := c.done[ref.Ref]; ok {
		return s, nil
	}
	if ref.Value == nil {
		return nil, &SpecError{Location: loc, Reason: fmt.Sprintf("unresolved reference %q", ref.Ref)}
	}

	c.active[ref.Ref] = true
	s, err := c.convert(ref.Value, refLocation(ref.Ref))
	delete(c.active, ref.Ref)
	if err != nil {
		return nil, err
	}
	s.Origin = ref.Ref
	c.done[ref.Ref] = s
	c.defs[ref.Ref] = s
	return s, nil
}

func (c *schemaConverter) convert(s *openapi3.Schema, loc string) (*schema.Schema, error) {
	node := &schema.Schema{
		Location:         loc,
		Nullable:         s.Nullable,
		ReadOnly:         s.ReadOnly,
		WriteOnly:        s.WriteOnly,
		Enum:             s.Enum,
		Format:           s.Format,
		Pattern:          s.Pattern,
		MaxLength:        s.MaxLength,
		Minimum:          s.Min,
		Maximum:          s.Max,
		ExclusiveMinimum: s.ExclusiveMin,
		ExclusiveMaximum: s.ExclusiveMax,
		MultipleOf:       s.MultipleOf,
		Required:         s.Required,
		MaxProperties:    s.MaxProps,
		MaxItems:         s.MaxItems,
		UniqueItems:      s.UniqueItems,
	}
	if v := s.MinLength; v > 0 {
		node.MinLength = &v
	}
	if v := s.MinItems; v > 0 {
		node.MinItems = &v
	}
	if v := s.MinProps; v > 0 {
		node.MinProperties = &v
	}
	if s.Pattern != "" {
		if _, err := regexp.Compile(s.Pattern); err != nil {
			return nil, &SpecError{Location: loc + ".pattern", Reason: fmt.Sprintf("invalid pattern: %v", err)}
		}
	}

	var kinds []schema.Kind
	nullType := c.nullTyped[s]
	for _, t := range s.Type.Slice() {
		if t == "null" {
			nullType = true
			continue
		}
		k, ok := kindByName[t]
		if !ok {
			return nil, &SpecError{Location: loc + ".type", Reason: fmt.Sprintf("unknown type %q", t)}
		}
		kinds = append(kinds, k)
	}
	switch {
	case len(kinds) == 0 && nullType:
		node.Kind = schema.KindNull
	case len(kinds) == 1:
		node.Kind = kinds[0]
		node.Nullable = node.Nullable || nullType
	default:
		node.Kind = schema.KindAny
		node.Nullable = node.Nullable || nullType
	}

	var err error
	if node.Items, err = c.convertRef(s.Items, loc+".items"); err != nil {
		return nil, err
	}
	if node.Not, err = c.convertRef(s.Not, loc+".not"); err != nil {
		return nil, err
	}

	if len(s.Properties) > 0 {
		node.Properties = make(map[string]*schema.Schema, len(s.Properties))
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			prop, err := c.convertRef(s.Properties[name], loc+".properties."+name)
			if err != nil {
				return nil, err
			}
			node.Properties[name] = prop
		}
	}

	node.AdditionalProperties.Location = loc + ".additionalProperties"
	switch ap := s.AdditionalProperties; {
	case ap.Schema != nil:
		extra, err := c.convertRef(ap.Schema, loc+".additionalProperties")
		if err != nil {
			return nil, err
		}
		node.AdditionalProperties.Policy = schema.AdditionalSchema
		node.AdditionalProperties.Schema = extra
	case ap.Has != nil && *ap.Has:
		node.AdditionalProperties.Policy = schema.AdditionalAllowed
	case ap.Has != nil:
		node.AdditionalProperties.Policy = schema.AdditionalForbidden
	}

	if len(kinds) > 1 {
		// type: [a, b] is an anyOf over single-typed copies.
		union := &schema.Schema{Kind: schema.KindComposite, Operator: schema.OpAnyOf, Location: loc, Nullable: node.Nullable}
		for _, k := range kinds {
			clone := *node
			clone.Kind = k
			union.Children = append(union.Children, &clone)
		}
		node = union
	}

	return c.compose(s, node, loc)
}

// compose wraps node with the allOf, oneOf and anyOf keywords of s.
func (c *schemaConverter) compose(s *openapi3.Schema, node *schema.Schema, loc string) (*schema.Schema, error) {
	if len(s.AllOf) == 0 && len(s.OneOf) == 0 && len(s.AnyOf) == 0 {
		return node, nil
	}

	var parts []*schema.Schema
	if !isBare(node) {
		parts = append(parts, node)
	}
	for i, ref := range s.AllOf {
		child, err := c.convertRef(ref, fmt.Sprintf("%s.allOf[%d]", loc, i))
		if err != nil {
			return nil, err
		}
		parts = append(parts, child)
	}
	branches := func(op schema.Operator, refs openapi3.SchemaRefs) (*schema.Schema, error) {
		out := &schema.Schema{Kind: schema.KindComposite, Operator: op, Location: loc}
		for i, ref := range refs {
			child, err := c.convertRef(ref, fmt.Sprintf("%s.%s[%d]", loc, op, i))
			if err != nil {
				return nil, err
			}
			out.Children = append(out.Children, child)
		}
		if d := s.Discriminator; d != nil {
			out.Discriminator = &schema.Discriminator{PropertyName: d.PropertyName, Mapping: map[string]string(d.Mapping)}
		}
		return out, nil
	}
	if len(s.OneOf) > 0 {
		b, err := branches(schema.OpOneOf, s.OneOf)
		if err != nil {
			return nil, err
		}
		parts = append(parts, b)
	}
	if len(s.AnyOf) > 0 {
		b, err := branches(schema.OpAnyOf, s.AnyOf)
		if err != nil {
			return nil, err
		}
		parts = append(parts, b)
	}

	if len(parts) == 1 && len(s.AllOf) == 0 {
		parts[0].Nullable = node.Nullable
		return parts[0], nil
	}
	out := &schema.Schema{
		Kind:     schema.KindComposite,
		Operator: schema.OpAllOf,
		Location: loc,
		Nullable: node.Nullable,
		Children: parts,
	}
	if err := c.checkAllOf(out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkAllOf rejects an allOf whose members declare types that no value can
// satisfy at once.
func (c *schemaConverter) checkAllOf(s *schema.Schema) error {
	kind := schema.KindAny
	for _, child := range s.Children {
		child = c.defs.Resolve(child)
		if child == nil || child.Kind == schema.KindComposite {
			continue
		}
		k, err := schema.IntersectKinds(kind, child.Kind)
		if err != nil {
			return &SpecError{Location: s.Location + ".allOf", Reason: err.Error()}
		}
		kind = k
	}
	return nil
}

// isBare reports whether a node carries no constraint of its own.
func isBare(s *schema.Schema) bool {
	return s.Kind == schema.KindAny &&
		len(s.Properties) == 0 && len(s.Required) == 0 && len(s.Enum) == 0 &&
		s.AdditionalProperties.Policy == schema.AdditionalUnspecified &&
		s.Format == "" && s.Pattern == "" && s.Not == nil && s.Items == nil &&
		s.MinLength == nil && s.MaxLength == nil && s.Minimum == nil && s.Maximum == nil &&
		s.MultipleOf == nil && s.MinItems == nil && s.MaxItems == nil && !s.UniqueItems &&
		s.MinProperties == nil && s.MaxProperties == nil && !s.ReadOnly && !s.WriteOnly
}
