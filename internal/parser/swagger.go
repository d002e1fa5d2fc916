package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"pact-verifier/internal/schema"
	"pact-verifier/internal/types"
)

// SwaggerParser turns an OpenAPI 3 or Swagger 2 document into a
// types.Specification
type SwaggerParser struct {
	client *http.Client
	doc    *openapi3.T
	// basePath is the Swagger 2 basePath, which is lost in conversion when
	// the document has no host.
	basePath string
	schemas  *schemaConverter
}

// NewSwaggerParser creates a new instance of SwaggerParser
func NewSwaggerParser() *SwaggerParser {
	return &SwaggerParser{
		client:  &http.Client{},
		schemas: newSchemaConverter(),
	}
}

// LoadSpecification parses a provider document held in memory.
func LoadSpecification(ctx context.Context, data []byte) (*types.Specification, error) {
	return NewSwaggerParser().Parse(ctx, data)
}

// LoadSpecificationSource reads a provider document from a file path or an
// http(s) URL and parses it.
func LoadSpecificationSource(ctx context.Context, source string) (*types.Specification, error) {
	p := NewSwaggerParser()
	data, err := p.read(ctx, source)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, data)
}

func (p *SwaggerParser) read(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read specification: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// Parse loads, validates and normalizes the document. Every failure wraps
// ErrMalformedSpecification.
func (p *SwaggerParser) Parse(ctx context.Context, data []byte) (*types.Specification, error) {
	var probe struct {
		Swagger  string `json:"swagger" yaml:"swagger"`
		OpenAPI  string `json:"openapi" yaml:"openapi"`
		BasePath string `json:"basePath" yaml:"basePath"`
	}
	if err := decodeDocument(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: failed to decode document: %v", ErrMalformedSpecification, err)
	}

	var err error
	switch {
	case strings.HasPrefix(probe.Swagger, "2."):
		p.basePath = probe.BasePath
		p.doc, err = convertSwagger2(data)
	case probe.OpenAPI != "":
		p.doc, err = openapi3.NewLoader().LoadFromData(data)
	default:
		return nil, &SpecError{Reason: "document declares neither openapi nor swagger version"}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse OpenAPI doc: %v", ErrMalformedSpecification, err)
	}
	p.schemas.nullTyped = normalizeDocument(p.doc)
	if err := p.doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSpecification, err)
	}

	return p.extractSpecification()
}

// convertSwagger2 decodes a Swagger 2 document, JSON or YAML, and converts it
// to OpenAPI 3.
func convertSwagger2(data []byte) (*openapi3.T, error) {
	if !isJSON(data) {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		asJSON, err := json.Marshal(stringKeys(raw))
		if err != nil {
			return nil, err
		}
		data = asJSON
	}
	var doc2 openapi2.T
	if err := json.Unmarshal(data, &doc2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&doc2)
}

// stringKeys rewrites YAML mappings with non-string keys, such as response
// codes, into JSON-compatible maps.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i, val := range x {
			x[i] = stringKeys(val)
		}
		return x
	}
	return v
}

func isJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeDocument(data []byte, v any) error {
	if isJSON(data) {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

// extractSpecification walks the loaded document
func (p *SwaggerParser) extractSpecification() (*types.Specification, error) {
	spec := &types.Specification{}
	if p.doc.Info != nil {
		spec.Title = p.doc.Info.Title
		spec.Version = p.doc.Info.Version
	}
	spec.BasePaths = p.basePaths()

	paths := p.doc.Paths.Map()
	templates := make([]string, 0, len(paths))
	for template := range paths {
		templates = append(templates, template)
	}
	sort.Strings(templates)

	seen := map[string]string{}
	for _, template := range templates {
		pathItem := paths[template]
		ops := pathItem.Operations()
		methods := make([]string, 0, len(ops))
		for method := range ops {
			methods = append(methods, method)
		}
		sort.Strings(methods)

		for _, method := range methods {
			endpoint, err := p.extractEndpoint(template, method, pathItem, ops[method])
			if err != nil {
				return nil, err
			}

			// /users/{id} and /users/{userId} are the same endpoint.
			key := strings.ToUpper(method) + " " + normalizeTemplate(endpoint.Segments)
			if other, ok := seen[key]; ok {
				return nil, &SpecError{
					Location: endpoint.Location,
					Reason:   fmt.Sprintf("duplicates %s %s", strings.ToUpper(method), other),
				}
			}
			seen[key] = template
			spec.Endpoints = append(spec.Endpoints, endpoint)
		}
	}

	spec.Definitions = p.schemas.defs
	return spec, nil
}

func (p *SwaggerParser) extractEndpoint(template, method string, pathItem *openapi3.PathItem, op *openapi3.Operation) (*types.Endpoint, error) {
	pathLoc := "paths." + template
	loc := pathLoc + "." + strings.ToLower(method)

	endpoint := &types.Endpoint{
		Method:    strings.ToUpper(method),
		Template:  template,
		Segments:  SplitPath(template),
		Location:  loc,
		Responses: make(map[string]*types.ResponseDefinition),
	}

	// Path level parameters first, replaced by operation parameters of the same name.
	index := map[string]int{}
	add := func(params openapi3.Parameters, base string) error {
		for i, ref := range params {
			param, err := p.extractParameter(ref, fmt.Sprintf("%s.parameters[%d]", base, i))
			if err != nil {
				return err
			}
			key := param.In + ":" + strings.ToLower(param.Name)
			if j, ok := index[key]; ok {
				endpoint.Parameters[j] = param
				continue
			}
			index[key] = len(endpoint.Parameters)
			endpoint.Parameters = append(endpoint.Parameters, param)
		}
		return nil
	}
	if err := add(pathItem.Parameters, pathLoc); err != nil {
		return nil, err
	}
	if err := add(op.Parameters, loc); err != nil {
		return nil, err
	}

	// Extract request body if present
	if op.RequestBody != nil {
		rbLoc := loc + ".requestBody"
		if op.RequestBody.Ref != "" {
			rbLoc = refLocation(op.RequestBody.Ref)
		}
		if op.RequestBody.Value == nil {
			return nil, &SpecError{Location: rbLoc, Reason: "unresolved request body"}
		}
		content, err := p.extractContent(op.RequestBody.Value.Content, rbLoc)
		if err != nil {
			return nil, err
		}
		endpoint.RequestBody = &types.RequestBody{
			Required: op.RequestBody.Value.Required,
			Content:  content,
			Location: rbLoc,
		}
	}

	// Extract responses
	for status, ref := range op.Responses.Map() {
		respLoc := loc + ".responses." + status
		if ref.Ref != "" {
			respLoc = refLocation(ref.Ref)
		}
		if ref.Value == nil {
			return nil, &SpecError{Location: respLoc, Reason: "unresolved response"}
		}
		resp, err := p.extractResponse(status, ref.Value, respLoc)
		if err != nil {
			return nil, err
		}
		endpoint.Responses[strings.ToUpper(status)] = resp
	}

	security, err := p.extractSecurity(op, loc)
	if err != nil {
		return nil, err
	}
	endpoint.Security = security
	return endpoint, nil
}

func (p *SwaggerParser) extractParameter(ref *openapi3.ParameterRef, loc string) (types.Parameter, error) {
	if ref.Ref != "" {
		loc = refLocation(ref.Ref)
	}
	if ref.Value == nil {
		return types.Parameter{}, &SpecError{Location: loc, Reason: "unresolved parameter"}
	}
	param := ref.Value
	s, err := p.parameterSchema(param.Schema, param.Content, loc)
	if err != nil {
		return types.Parameter{}, err
	}
	return types.Parameter{
		Name:     param.Name,
		In:       param.In,
		Required: param.Required || param.In == openapi3.ParameterInPath,
		Style:    param.Style,
		Schema:   s,
		Location: loc,
	}, nil
}

// parameterSchema returns the schema of a parameter or header, taken from
// content when no schema is given.
func (p *SwaggerParser) parameterSchema(ref *openapi3.SchemaRef, content openapi3.Content, loc string) (*schema.Schema, error) {
	if ref != nil {
		return p.schemas.convertRef(ref, loc+".schema")
	}
	mediaTypes := make([]string, 0, len(content))
	for mt := range content {
		mediaTypes = append(mediaTypes, mt)
	}
	sort.Strings(mediaTypes)
	for _, mt := range mediaTypes {
		if c := content[mt]; c != nil && c.Schema != nil {
			return p.schemas.convertRef(c.Schema, loc+".content."+mt+".schema")
		}
	}
	return &schema.Schema{Kind: schema.KindAny, Location: loc}, nil
}

// extractContent keys media types by their lower-cased type/subtype.
// Parameters such as charset are dropped from the key and kept in the
// location; when two declarations share a base type the first in sorted
// order wins.
func (p *SwaggerParser) extractContent(content openapi3.Content, loc string) (map[string]*types.MediaType, error) {
	declared := make([]string, 0, len(content))
	for mt := range content {
		declared = append(declared, mt)
	}
	sort.Strings(declared)

	out := make(map[string]*types.MediaType, len(content))
	for _, mt := range declared {
		key := baseMediaType(mt)
		if _, ok := out[key]; ok {
			continue
		}
		entry := &types.MediaType{Location: loc + ".content." + mt}
		if media := content[mt]; media != nil && media.Schema != nil {
			s, err := p.schemas.convertRef(media.Schema, entry.Location+".schema")
			if err != nil {
				return nil, err
			}
			entry.Schema = s
			entry.Location += ".schema"
		}
		out[key] = entry
	}
	return out, nil
}

func baseMediaType(mt string) string {
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	base, _, _ := strings.Cut(mt, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func (p *SwaggerParser) extractResponse(status string, resp *openapi3.Response, loc string) (*types.ResponseDefinition, error) {
	content, err := p.extractContent(resp.Content, loc)
	if err != nil {
		return nil, err
	}
	out := &types.ResponseDefinition{
		Status:   strings.ToUpper(status),
		Headers:  make(map[string]types.Parameter, len(resp.Headers)),
		Content:  content,
		Location: loc,
	}
	for name, ref := range resp.Headers {
		hLoc := loc + ".headers." + name
		if ref.Ref != "" {
			hLoc = refLocation(ref.Ref)
		}
		if ref.Value == nil {
			return nil, &SpecError{Location: hLoc, Reason: "unresolved header"}
		}
		s, err := p.parameterSchema(ref.Value.Schema, ref.Value.Content, hLoc)
		if err != nil {
			return nil, err
		}
		out.Headers[strings.ToLower(name)] = types.Parameter{
			Name:     name,
			In:       types.InHeader,
			Required: ref.Value.Required,
			Schema:   s,
			Location: hLoc,
		}
	}
	return out, nil
}

// extractSecurity resolves the security requirements of an operation. The
// operation list replaces the document list; an empty list disables security.
func (p *SwaggerParser) extractSecurity(op *openapi3.Operation, loc string) ([]types.SecurityRequirement, error) {
	reqs := p.doc.Security
	secLoc := "security"
	if op.Security != nil {
		reqs = *op.Security
		secLoc = loc + ".security"
	}

	var schemes openapi3.SecuritySchemes
	if p.doc.Components != nil {
		schemes = p.doc.Components.SecuritySchemes
	}

	var out []types.SecurityRequirement
	for i, req := range reqs {
		names := make([]string, 0, len(req))
		for name := range req {
			names = append(names, name)
		}
		sort.Strings(names)

		alt := types.SecurityRequirement{}
		for _, name := range names {
			ref, ok := schemes[name]
			if !ok || ref == nil || ref.Value == nil {
				return nil, &SpecError{
					Location: fmt.Sprintf("%s[%d].%s", secLoc, i, name),
					Reason:   fmt.Sprintf("unknown security scheme %q", name),
				}
			}
			alt.Schemes = append(alt.Schemes, types.SecurityScheme{
				Name:      name,
				Type:      ref.Value.Type,
				Scheme:    strings.ToLower(ref.Value.Scheme),
				In:        ref.Value.In,
				ParamName: ref.Value.Name,
			})
		}
		out = append(out, alt)
	}
	return out, nil
}

// basePaths collects the path prefixes of the declared servers, longest first.
func (p *SwaggerParser) basePaths() []string {
	seen := map[string]bool{}
	var out []string
	addPath := func(path string) {
		path = "/" + strings.Trim(path, "/")
		if path == "/" || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, path)
	}

	if p.basePath != "" {
		addPath(p.basePath)
	}
	for _, server := range p.doc.Servers {
		if server == nil {
			continue
		}
		raw := server.URL
		for name, v := range server.Variables {
			if v != nil {
				raw = strings.ReplaceAll(raw, "{"+name+"}", v.Default)
			}
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		addPath(u.Path)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// SplitPath splits a path or template into its non-empty segments.
func SplitPath(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// IsPlaceholder reports whether a template segment is a "{name}" placeholder.
func IsPlaceholder(segment string) bool {
	return len(segment) > 2 && strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}

func normalizeTemplate(segments []string) string {
	out := make([]string, len(segments))
	for i, seg := range segments {
		if IsPlaceholder(seg) {
			seg = "{}"
		}
		out[i] = seg
	}
	return "/" + strings.Join(out, "/")
}
