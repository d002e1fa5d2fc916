package pact

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"pact-verifier/internal/types"
)

// ErrMalformedInteraction is returned when a pact file cannot be interpreted.
// It aborts the whole verification run.
var ErrMalformedInteraction = errors.New("malformed interaction")

// InteractionError locates a problem inside a pact file. Index is -1 for
// problems with the file itself.
type InteractionError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InteractionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", ErrMalformedInteraction, e.Reason)
	}
	loc := fmt.Sprintf("interaction[%d]", e.Index)
	if e.Field != "" {
		loc += "." + e.Field
	}
	return fmt.Sprintf("%s at %s: %s", ErrMalformedInteraction, loc, e.Reason)
}

func (e *InteractionError) Unwrap() error {
	return ErrMalformedInteraction
}

// File is a loaded pact file
type File struct {
	Consumer    string
	Provider    string
	SpecVersion string
	// Interactions holds the HTTP interactions in file order.
	Interactions []types.Interaction
	// Skipped counts interactions that are not HTTP (v4 messages).
	Skipped int
}

type participant struct {
	Name string `json:"name"`
}

type document struct {
	Consumer     participant                   `json:"consumer"`
	Provider     participant                   `json:"provider"`
	Interactions *[]map[string]json.RawMessage `json:"interactions"`
	Metadata     map[string]json.RawMessage    `json:"metadata"`
}

// LoadFile reads and loads a pact file from disk
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pact file: %w", err)
	}
	return Load(data)
}

// Load decodes a pact file of specification version 2, 3 or 4.
func Load(data []byte) (*File, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &InteractionError{Index: -1, Reason: fmt.Sprintf("failed to parse pact file: %v", err)}
	}
	if doc.Interactions == nil {
		return nil, &InteractionError{Index: -1, Reason: "interactions must be an array"}
	}

	file := &File{
		Consumer:    doc.Consumer.Name,
		Provider:    doc.Provider.Name,
		SpecVersion: specVersion(doc.Metadata),
	}
	for i, raw := range *doc.Interactions {
		if t := stringField(raw["type"]); t != "" && !strings.EqualFold(t, "Synchronous/HTTP") {
			file.Skipped++
			continue
		}
		interaction, err := decodeInteraction(i, raw)
		if err != nil {
			return nil, err
		}
		file.Interactions = append(file.Interactions, interaction)
	}
	return file, nil
}

// specVersion reads metadata.pactSpecification.version, or the older
// "pact-specification" and "pactSpecificationVersion" keys.
func specVersion(meta map[string]json.RawMessage) string {
	for _, key := range []string{"pactSpecification", "pact-specification"} {
		var v struct {
			Version string `json:"version"`
		}
		if raw, ok := meta[key]; ok && json.Unmarshal(raw, &v) == nil && v.Version != "" {
			return v.Version
		}
	}
	return stringField(meta["pactSpecificationVersion"])
}

func decodeInteraction(index int, raw map[string]json.RawMessage) (types.Interaction, error) {
	interaction := types.Interaction{
		Index:         index,
		Description:   stringField(raw["description"]),
		ProviderState: stringField(raw["providerState"]),
	}

	if states, ok := raw["providerStates"]; ok {
		var list []struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(states, &list); err != nil {
			return interaction, &InteractionError{Index: index, Field: "providerStates", Reason: err.Error()}
		}
		names := make([]string, 0, len(list))
		for _, s := range list {
			names = append(names, s.Name)
		}
		interaction.ProviderState = strings.Join(names, ", ")
	}

	req, ok := raw["request"]
	if !ok || isNull(req) {
		return interaction, &InteractionError{Index: index, Field: "request", Reason: "request is required"}
	}
	request, err := decodeRequest(index, req)
	if err != nil {
		return interaction, err
	}
	interaction.Request = request

	resp, ok := raw["response"]
	if !ok || isNull(resp) {
		return interaction, &InteractionError{Index: index, Field: "response", Reason: "response is required"}
	}
	response, err := decodeResponse(index, resp)
	if err != nil {
		return interaction, err
	}
	interaction.Response = response
	return interaction, nil
}

func decodeRequest(index int, raw json.RawMessage) (types.Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.Request{}, &InteractionError{Index: index, Field: "request", Reason: err.Error()}
	}

	req := types.Request{
		Method: strings.ToUpper(stringField(fields["method"])),
		Path:   stringField(fields["path"]),
		Query:  map[string][]string{},
	}
	if req.Method == "" {
		return req, &InteractionError{Index: index, Field: "request.method", Reason: "method is required"}
	}
	if req.Path == "" {
		return req, &InteractionError{Index: index, Field: "request.path", Reason: "path is required"}
	}
	if i := strings.IndexByte(req.Path, '?'); i >= 0 {
		if err := mergeQueryString(req.Query, req.Path[i+1:]); err != nil {
			return req, &InteractionError{Index: index, Field: "request.path", Reason: err.Error()}
		}
		req.Path = req.Path[:i]
	}

	if q, ok := fields["query"]; ok && !isNull(q) {
		if err := decodeQuery(req.Query, q); err != nil {
			return req, &InteractionError{Index: index, Field: "request.query", Reason: err.Error()}
		}
	}

	headers, err := decodeHeaders(fields["headers"])
	if err != nil {
		return req, &InteractionError{Index: index, Field: "request.headers", Reason: err.Error()}
	}
	req.Headers = headers

	body, err := decodeBody(fields, headers)
	if err != nil {
		return req, &InteractionError{Index: index, Field: "request.body", Reason: err.Error()}
	}
	req.Body = body
	return req, nil
}

func decodeResponse(index int, raw json.RawMessage) (types.Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.Response{}, &InteractionError{Index: index, Field: "response", Reason: err.Error()}
	}

	resp := types.Response{}
	status, ok := fields["status"]
	if !ok || isNull(status) {
		return resp, &InteractionError{Index: index, Field: "response.status", Reason: "status is required"}
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(status)))
	if err != nil || code < 100 || code > 599 {
		return resp, &InteractionError{Index: index, Field: "response.status", Reason: fmt.Sprintf("invalid status %s", status)}
	}
	resp.Status = code

	headers, err := decodeHeaders(fields["headers"])
	if err != nil {
		return resp, &InteractionError{Index: index, Field: "response.headers", Reason: err.Error()}
	}
	resp.Headers = headers

	body, err := decodeBody(fields, headers)
	if err != nil {
		return resp, &InteractionError{Index: index, Field: "response.body", Reason: err.Error()}
	}
	resp.Body = body
	return resp, nil
}

// decodeQuery accepts a v2 query string or a v3/v4 map of values.
func decodeQuery(dst map[string][]string, raw json.RawMessage) error {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return mergeQueryString(dst, s)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("query must be a string or an object")
	}
	for name, v := range m {
		values, err := stringValues(v)
		if err != nil {
			return fmt.Errorf("query %q: %v", name, err)
		}
		dst[name] = append(dst[name], values...)
	}
	return nil
}

func mergeQueryString(dst map[string][]string, s string) error {
	values, err := url.ParseQuery(s)
	if err != nil {
		return err
	}
	for name, v := range values {
		dst[name] = append(dst[name], v...)
	}
	return nil
}

// decodeHeaders lower-cases names; names differing only in case are merged
// in sorted order of the original names.
func decodeHeaders(raw json.RawMessage) (types.Headers, error) {
	headers := types.Headers{}
	if raw == nil || isNull(raw) {
		return headers, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("headers must be an object")
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values, err := stringValues(m[name])
		if err != nil {
			return nil, fmt.Errorf("header %q: %v", name, err)
		}
		key := strings.ToLower(name)
		headers[key] = append(headers[key], values...)
	}
	return headers, nil
}

// stringValues decodes a string or an array of strings
func stringValues(raw json.RawMessage) ([]string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("must be a string or an array of strings")
	}
	return list, nil
}

// decodeBody keeps an absent body absent and a null body present. Version 4
// bodies of the form {"content": ..., "contentType": ..., "encoded": ...} are
// unwrapped.
func decodeBody(fields map[string]json.RawMessage, headers types.Headers) (types.Body, error) {
	raw, ok := fields["body"]
	if !ok {
		return types.Body{}, nil
	}
	value, err := decodeValue(raw)
	if err != nil {
		return types.Body{}, err
	}

	obj, isObject := value.(map[string]any)
	_, hasContent := obj["content"]
	if !isObject || !hasContent || !isV4Body(obj) {
		return types.Body{Present: true, Value: value}, nil
	}

	contentType, _ := obj["contentType"].(string)
	if contentType != "" && !headers.Has("content-type") {
		headers["content-type"] = []string{contentType}
	}
	content := obj["content"]
	text, isText := content.(string)
	switch enc := obj["encoded"].(type) {
	case bool:
		if enc && isText {
			return decodeEncoded(text, "base64", contentType)
		}
	case string:
		if isText && enc != "" {
			return decodeEncoded(text, strings.ToLower(enc), contentType)
		}
	}
	return types.Body{Present: true, Value: content}, nil
}

func isV4Body(obj map[string]any) bool {
	for k := range obj {
		switch k {
		case "content", "contentType", "encoded", "contentTypeHint":
		default:
			return false
		}
	}
	return true
}

func decodeEncoded(text, encoding, contentType string) (types.Body, error) {
	data := []byte(text)
	if encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return types.Body{}, fmt.Errorf("invalid base64 body: %v", err)
		}
		data = decoded
		if !isJSONMediaType(contentType) {
			return types.Body{Present: true, Value: string(decoded)}, nil
		}
	}
	value, err := decodeValue(data)
	if err != nil {
		return types.Body{}, err
	}
	return types.Body{Present: true, Value: value}, nil
}

func isJSONMediaType(contentType string) bool {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// decodeValue decodes JSON keeping numbers as json.Number so integers and
// fractions stay distinguishable.
func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func stringField(raw json.RawMessage) string {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
