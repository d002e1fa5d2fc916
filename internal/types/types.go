package types

import (
	"sort"
	"strings"

	"pact-verifier/internal/schema"
)

// Parameter locations
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
	InCookie = "cookie"
)

// Specification is the normalized provider document. It is read-only once
// loaded and may be shared between goroutines.
type Specification struct {
	Title   string
	Version string
	// Endpoints are ordered by path template, then method.
	Endpoints []*Endpoint
	// Definitions holds the targets of back-reference schema nodes.
	Definitions schema.Definitions
	// BasePaths are stripped from concrete paths before matching.
	BasePaths []string
}

// Endpoint looks up an endpoint by path template and method.
func (s *Specification) Endpoint(template, method string) *Endpoint {
	for _, e := range s.Endpoints {
		if e.Template == template && strings.EqualFold(e.Method, method) {
			return e
		}
	}
	return nil
}

// Endpoint represents one (path template, method) pair of the specification
type Endpoint struct {
	Method   string
	Template string
	// Segments are the template split on "/", without empty segments.
	Segments []string
	// Location is the spec location of the operation, e.g. "paths./users.post".
	Location    string
	Parameters  []Parameter
	RequestBody *RequestBody
	// Responses are keyed by status code, status range ("2XX") or "default".
	Responses map[string]*ResponseDefinition
	// Security lists alternatives; each alternative must be satisfied as a whole.
	// An empty list means the endpoint is public.
	Security []SecurityRequirement
}

// Params returns the parameters declared in the given location
func (e *Endpoint) Params(in string) []Parameter {
	var out []Parameter
	for _, p := range e.Parameters {
		if p.In == in {
			out = append(out, p)
		}
	}
	return out
}

// Param finds a parameter by location and name. Header names are compared
// case-insensitively.
func (e *Endpoint) Param(in, name string) (Parameter, bool) {
	for _, p := range e.Parameters {
		if p.In != in {
			continue
		}
		if p.Name == name || (in == InHeader && strings.EqualFold(p.Name, name)) {
			return p, true
		}
	}
	return Parameter{}, false
}

// Consumes lists the request media types in sorted order
func (e *Endpoint) Consumes() []string {
	if e.RequestBody == nil {
		return nil
	}
	return sortedMediaTypes(e.RequestBody.Content)
}

// Produces lists every media type any response declares, sorted.
func (e *Endpoint) Produces() []string {
	seen := map[string]*MediaType{}
	for _, r := range e.Responses {
		for mt, c := range r.Content {
			seen[mt] = c
		}
	}
	return sortedMediaTypes(seen)
}

// Parameter represents a path, query, header or cookie parameter
type Parameter struct {
	Name     string
	In       string
	Required bool
	// Style is the serialization style, e.g. "form" or "deepObject".
	Style    string
	Schema   *schema.Schema
	Location string
}

// RequestBody represents the request body of an operation
type RequestBody struct {
	Required bool
	// Content maps a media type to its schema.
	Content  map[string]*MediaType
	Location string
}

// MediaType is the schema declared for one media type
type MediaType struct {
	Schema   *schema.Schema
	Location string
}

// ResponseDefinition represents one declared response of an operation
type ResponseDefinition struct {
	Status string
	// Headers are keyed by lower-cased header name.
	Headers  map[string]Parameter
	Content  map[string]*MediaType
	Location string
}

// SecurityRequirement is one alternative: every scheme in it must be satisfied.
type SecurityRequirement struct {
	Schemes []SecurityScheme
}

// SecurityScheme describes how a client proves its identity
type SecurityScheme struct {
	Name string
	// Type is apiKey, http, oauth2 or openIdConnect.
	Type string
	// Scheme is the HTTP auth scheme (basic, bearer) for type http.
	Scheme string
	// In and ParamName locate an apiKey.
	In        string
	ParamName string
}

func sortedMediaTypes(content map[string]*MediaType) []string {
	out := make([]string, 0, len(content))
	for mt := range content {
		out = append(out, mt)
	}
	sort.Strings(out)
	return out
}
