package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"pact-verifier/internal/parser"
	"pact-verifier/internal/types"
)

var (
	// ErrUnknownPathOrMethod is returned when no endpoint accepts the request.
	ErrUnknownPathOrMethod = errors.New("unknown path or method")
	// ErrAmbiguousTemplates is returned when two templates with the same number
	// of literal segments match a path. It is a specification defect.
	ErrAmbiguousTemplates = fmt.Errorf("%w: ambiguous path templates", parser.ErrMalformedSpecification)
)

// Match is a resolved endpoint together with the bound path parameters
type Match struct {
	Endpoint *types.Endpoint
	// Params maps placeholder names to the concrete, unescaped segment values.
	Params map[string]string
	// Path is the concrete path after base path stripping.
	Path string
}

type candidate struct {
	endpoint *types.Endpoint
	params   map[string]string
	literals int
}

// Resolve maps a concrete request onto an endpoint of the specification.
// Base paths are stripped first; a path that matches nothing once stripped is
// also tried as given.
func Resolve(spec *types.Specification, method, path string) (*Match, error) {
	tried := map[string]bool{}
	for _, p := range candidatePaths(spec.BasePaths, path) {
		if tried[p] {
			continue
		}
		tried[p] = true
		m, err := resolvePath(spec, method, p)
		if errors.Is(err, ErrUnknownPathOrMethod) {
			continue
		}
		return m, err
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnknownPathOrMethod, strings.ToUpper(method), path)
}

func candidatePaths(basePaths []string, path string) []string {
	var out []string
	for _, base := range basePaths {
		base = strings.TrimRight(base, "/")
		if base == "" {
			continue
		}
		if path == base {
			out = append(out, "/")
		} else if strings.HasPrefix(path, base+"/") {
			out = append(out, strings.TrimPrefix(path, base))
		}
	}
	return append(out, path)
}

func resolvePath(spec *types.Specification, method, path string) (*Match, error) {
	segments, err := splitConcrete(path)
	if err != nil {
		return nil, ErrUnknownPathOrMethod
	}

	var best []candidate
	for _, e := range spec.Endpoints {
		if !strings.EqualFold(e.Method, method) {
			continue
		}
		params, literals, ok := matchSegments(e.Segments, segments)
		if !ok {
			continue
		}
		c := candidate{endpoint: e, params: params, literals: literals}
		switch {
		case len(best) == 0 || literals > best[0].literals:
			best = []candidate{c}
		case literals == best[0].literals:
			best = append(best, c)
		}
	}

	switch len(best) {
	case 0:
		return nil, ErrUnknownPathOrMethod
	case 1:
		return &Match{Endpoint: best[0].endpoint, Params: best[0].params, Path: path}, nil
	default:
		templates := make([]string, len(best))
		for i, c := range best {
			templates[i] = c.endpoint.Template
		}
		return nil, fmt.Errorf("%w: %s matches %s", ErrAmbiguousTemplates, path, strings.Join(templates, ", "))
	}
}

// splitConcrete splits a request path into unescaped segments. A trailing
// slash is ignored.
func splitConcrete(path string) ([]string, error) {
	raw := parser.SplitPath(path)
	out := make([]string, len(raw))
	for i, seg := range raw {
		v, err := url.PathUnescape(seg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func matchSegments(template, concrete []string) (map[string]string, int, bool) {
	if len(template) != len(concrete) {
		return nil, 0, false
	}
	params := map[string]string{}
	literals := 0
	for i, seg := range template {
		if parser.IsPlaceholder(seg) {
			if concrete[i] == "" {
				return nil, 0, false
			}
			params[seg[1:len(seg)-1]] = concrete[i]
			continue
		}
		if seg != concrete[i] {
			return nil, 0, false
		}
		literals++
	}
	return params, literals, true
}
