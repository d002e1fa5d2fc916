package parser

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// normalizer rewrites the parts of a loaded document that kin-openapi
// validation rejects but the matcher understands: mixed-case http auth
// schemes and "null" members of type arrays.
type normalizer struct {
	seen map[*openapi3.Schema]bool
	// nullTyped holds the schemas whose type array listed "null".
	nullTyped map[*openapi3.Schema]bool
}

func normalizeDocument(doc *openapi3.T) map[*openapi3.Schema]bool {
	n := &normalizer{
		seen:      map[*openapi3.Schema]bool{},
		nullTyped: map[*openapi3.Schema]bool{},
	}

	if c := doc.Components; c != nil {
		for _, ref := range c.SecuritySchemes {
			if ref != nil && ref.Value != nil && strings.EqualFold(ref.Value.Type, "http") {
				ref.Value.Scheme = strings.ToLower(ref.Value.Scheme)
			}
		}
		for _, ref := range c.Schemas {
			n.schemaRef(ref)
		}
		for _, ref := range c.Parameters {
			n.parameter(ref)
		}
		for _, ref := range c.Headers {
			if ref != nil && ref.Value != nil {
				n.param(&ref.Value.Parameter)
			}
		}
		for _, ref := range c.RequestBodies {
			if ref != nil && ref.Value != nil {
				n.content(ref.Value.Content)
			}
		}
		for _, ref := range c.Responses {
			n.response(ref)
		}
	}

	if doc.Paths != nil {
		for _, item := range doc.Paths.Map() {
			if item == nil {
				continue
			}
			for _, ref := range item.Parameters {
				n.parameter(ref)
			}
			for _, op := range item.Operations() {
				for _, ref := range op.Parameters {
					n.parameter(ref)
				}
				if op.RequestBody != nil && op.RequestBody.Value != nil {
					n.content(op.RequestBody.Value.Content)
				}
				if op.Responses != nil {
					for _, ref := range op.Responses.Map() {
						n.response(ref)
					}
				}
			}
		}
	}
	return n.nullTyped
}

func (n *normalizer) parameter(ref *openapi3.ParameterRef) {
	if ref != nil && ref.Value != nil {
		n.param(ref.Value)
	}
}

func (n *normalizer) param(p *openapi3.Parameter) {
	n.schemaRef(p.Schema)
	n.content(p.Content)
}

func (n *normalizer) response(ref *openapi3.ResponseRef) {
	if ref == nil || ref.Value == nil {
		return
	}
	for _, h := range ref.Value.Headers {
		if h != nil && h.Value != nil {
			n.param(&h.Value.Parameter)
		}
	}
	n.content(ref.Value.Content)
}

func (n *normalizer) content(content openapi3.Content) {
	for _, media := range content {
		if media != nil {
			n.schemaRef(media.Schema)
		}
	}
}

func (n *normalizer) schemaRef(ref *openapi3.SchemaRef) {
	if ref == nil || ref.Value == nil || n.seen[ref.Value] {
		return
	}
	s := ref.Value
	n.seen[s] = true

	if s.Type.Includes(openapi3.TypeNull) {
		kept := openapi3.Types{}
		for _, t := range s.Type.Slice() {
			if t != openapi3.TypeNull {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			s.Type = nil
		} else {
			s.Type = &kept
		}
		s.Nullable = true
		n.nullTyped[s] = true
	}

	for _, p := range s.Properties {
		n.schemaRef(p)
	}
	n.schemaRef(s.Items)
	n.schemaRef(s.Not)
	n.schemaRef(s.AdditionalProperties.Schema)
	for _, group := range []openapi3.SchemaRefs{s.AllOf, s.OneOf, s.AnyOf} {
		for _, c := range group {
			n.schemaRef(c)
		}
	}
}
