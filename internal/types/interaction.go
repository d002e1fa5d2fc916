package types

import (
	"strconv"
	"strings"
)

// Interaction is one consumer expectation: a request and the response the
// consumer relies on.
type Interaction struct {
	// Index is the position of the interaction in the input set.
	Index         int
	Description   string
	ProviderState string
	Request       Request
	Response      Response
}

// Location returns the interaction location prefix, e.g. "interaction[2]".
func (i *Interaction) Location() string {
	return "interaction[" + strconv.Itoa(i.Index) + "]"
}

// Request is the request half of an interaction
type Request struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers Headers
	Body    Body
}

// Response is the expected response of an interaction
type Response struct {
	Status  int
	Headers Headers
	Body    Body
}

// Body is a request or response body. Present distinguishes an absent body
// from a body that is present and null.
type Body struct {
	Present bool
	Value   any
}

// Headers maps lower-cased header names to their values.
type Headers map[string][]string

// Get returns the first value of a header, or "".
func (h Headers) Get(name string) string {
	if v := h[strings.ToLower(name)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Has reports whether the header is present, even with an empty value.
func (h Headers) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}
