package checker

import (
	"fmt"
	"net/http"
	"strings"

	"pact-verifier/internal/schema"
	"pact-verifier/internal/types"
)

// wellKnownRequestHeaders are standard HTTP headers that need no declaration.
var wellKnownRequestHeaders = map[string]bool{
	"accept":            true,
	"accept-charset":    true,
	"accept-encoding":   true,
	"accept-language":   true,
	"authorization":     true,
	"cache-control":     true,
	"connection":        true,
	"content-encoding":  true,
	"content-length":    true,
	"content-type":      true,
	"cookie":            true,
	"host":              true,
	"if-match":          true,
	"if-modified-since": true,
	"if-none-match":     true,
	"origin":            true,
	"pragma":            true,
	"referer":           true,
	"user-agent":        true,
}

func (ch *check) checkRequestContentType() {
	e := ch.match.Endpoint
	req := ch.interaction.Request
	consumes := e.Consumes()
	ct := req.Headers.Get("content-type")

	switch {
	case ct != "" && len(consumes) == 0:
		v := types.NewViolation(types.CodeRequestContentTypeUnknown,
			fmt.Sprintf("Content-Type %s is sent but %s %s declares no request body", ct, e.Method, e.Template))
		v.Value = ct
		ch.add(v, "request.headers.content-type", e.Location)
	case ct != "":
		if _, _, ok := lookupContent(e.RequestBody.Content, parseMediaType(ct)); !ok {
			v := types.NewViolation(types.CodeRequestContentTypeIncompatible,
				fmt.Sprintf("Content-Type %s is not one of %s", ct, strings.Join(consumes, ", ")))
			v.Value = ct
			v.Constraint = "consumes: " + strings.Join(consumes, ", ")
			ch.add(v, "request.headers.content-type", e.RequestBody.Location+".content")
		}
	case len(consumes) > 0 && (req.Body.Present || e.RequestBody.Required):
		v := types.NewViolation(types.CodeRequestContentTypeMissing,
			fmt.Sprintf("no Content-Type is sent but %s %s consumes %s", e.Method, e.Template, strings.Join(consumes, ", ")))
		ch.add(v, "request.headers", e.RequestBody.Location+".content")
	}
}

func (ch *check) checkAccept() {
	e := ch.match.Endpoint
	accept, ok := ch.interaction.Request.Headers["accept"]
	if !ok {
		return
	}
	produces := e.Produces()
	if len(produces) == 0 {
		v := types.NewViolation(types.CodeRequestAcceptUnknown,
			fmt.Sprintf("Accept %s is sent but %s %s produces no body", strings.Join(accept, ", "), e.Method, e.Template))
		v.Value = strings.Join(accept, ", ")
		ch.add(v, "request.headers.accept", e.Location+".responses")
		return
	}
	if !acceptable(accept, produces) {
		v := types.NewViolation(types.CodeRequestAcceptIncompatible,
			fmt.Sprintf("Accept %s matches none of %s", strings.Join(accept, ", "), strings.Join(produces, ", ")))
		v.Value = strings.Join(accept, ", ")
		v.Constraint = "produces: " + strings.Join(produces, ", ")
		ch.add(v, "request.headers.accept", e.Location+".responses")
	}
}

func (ch *check) checkRequestHeaders() {
	e := ch.match.Endpoint
	headers := ch.interaction.Request.Headers
	base := ch.interaction.Location() + ".request.headers"

	for _, name := range sortedKeys(headers) {
		p, declared := e.Param(types.InHeader, name)
		switch {
		case declared:
			ch.checkParam(types.CodeRequestHeaderIncompatible, "header", p, headers[name], schema.JoinLocation(base, name))
		case wellKnownRequestHeaders[name], ch.isCredential(types.InHeader, name):
		default:
			v := types.NewViolation(types.CodeRequestHeaderUnknown,
				fmt.Sprintf("header '%s' is not declared by %s %s", name, e.Method, e.Template))
			v.Value = headers.Get(name)
			ch.add(v, "request.headers."+name, e.Location+".parameters")
		}
	}

	cookies := parseCookies(headers["cookie"])
	for _, p := range e.Params(types.InCookie) {
		if value, ok := cookies[p.Name]; ok {
			ch.checkParam(types.CodeRequestHeaderIncompatible, "cookie", p, []string{value}, base+".cookie."+p.Name)
		} else if p.Required {
			ch.missingParam(types.CodeRequestHeaderIncompatible, "cookie", p, base+".cookie")
		}
	}

	for _, p := range e.Params(types.InHeader) {
		if p.Required && !headers.Has(p.Name) {
			ch.missingParam(types.CodeRequestHeaderIncompatible, "header", p, base)
		}
	}
}

func (ch *check) checkQuery() {
	e := ch.match.Endpoint
	query := ch.interaction.Request.Query
	base := ch.interaction.Location() + ".request.query"
	objects, folded := ch.deepObjectQuery(query)

	for _, name := range sortedKeys(query) {
		if folded[name] {
			continue
		}
		p, declared := e.Param(types.InQuery, name)
		switch {
		case declared:
			ch.checkParam(types.CodeRequestQueryIncompatible, "query parameter", p, query[name], schema.JoinLocation(base, name))
		case ch.isCredential(types.InQuery, name):
		default:
			v := types.NewViolation(types.CodeRequestQueryUnknown,
				fmt.Sprintf("query parameter '%s' is not declared by %s %s", name, e.Method, e.Template))
			if values := query[name]; len(values) > 0 {
				v.Value = values[0]
			}
			ch.add(v, "request.query."+name, e.Location+".parameters")
		}
	}

	for _, name := range sortedKeys(objects) {
		p, _ := e.Param(types.InQuery, name)
		value := ch.deepObjectValue(p, objects[name])
		issues := ch.requestMatcher.Validate(value, p.Schema, schema.JoinLocation(base, name))
		ch.addIssues(types.CodeRequestQueryIncompatible, fmt.Sprintf("query parameter '%s' ", name), issues, p.Location)
	}

	for _, p := range e.Params(types.InQuery) {
		_, present := query[p.Name]
		_, object := objects[p.Name]
		if p.Required && !present && !object {
			ch.missingParam(types.CodeRequestQueryIncompatible, "query parameter", p, base)
		}
	}
}

// deepObjectQuery groups name[key]=value pairs of deepObject parameters by
// parameter name and returns the query keys it consumed.
func (ch *check) deepObjectQuery(query map[string][]string) (map[string]map[string][]string, map[string]bool) {
	objects := map[string]map[string][]string{}
	folded := map[string]bool{}
	for name, values := range query {
		open := strings.IndexByte(name, '[')
		if open <= 0 || !strings.HasSuffix(name, "]") {
			continue
		}
		p, ok := ch.match.Endpoint.Param(types.InQuery, name[:open])
		if !ok || p.Style != "deepObject" || p.Schema == nil {
			continue
		}
		if objects[p.Name] == nil {
			objects[p.Name] = map[string][]string{}
		}
		objects[p.Name][name[open+1:len(name)-1]] = values
		folded[name] = true
	}
	return objects, folded
}

// deepObjectValue builds the object of a deepObject parameter, coercing each
// field with its property schema.
func (ch *check) deepObjectValue(p types.Parameter, fields map[string][]string) map[string]any {
	obj := make(map[string]any, len(fields))
	s := ch.spec.Definitions.Resolve(p.Schema)
	for key, values := range fields {
		var prop *schema.Schema
		if s != nil {
			prop = s.Properties[key]
		}
		switch {
		case len(values) == 0:
			obj[key] = ""
		case prop == nil:
			obj[key] = values[0]
		default:
			obj[key] = schema.Coerce(values, prop, ch.spec.Definitions)
		}
	}
	return obj
}

// checkParam validates raw string values against a parameter schema.
func (ch *check) checkParam(code types.Code, what string, p types.Parameter, values []string, loc string) {
	if p.Schema == nil {
		return
	}
	value := schema.Coerce(values, p.Schema, ch.spec.Definitions)
	issues := ch.requestMatcher.Validate(value, p.Schema, loc)
	ch.addIssues(code, fmt.Sprintf("%s '%s' ", what, p.Name), issues, p.Location)
}

func (ch *check) missingParam(code types.Code, what string, p types.Parameter, loc string) {
	v := types.NewViolation(code, fmt.Sprintf("missing required %s '%s'", what, p.Name))
	v.Kind = types.KindMissing
	v.InteractionIndex = ch.interaction.Index
	v.InteractionDescription = ch.interaction.Description
	v.InteractionLocation = loc
	v.SpecLocation = p.Location
	ch.violations = append(ch.violations, v)
}

// isCredential reports whether a header, query or cookie parameter carries an
// apiKey declared by the endpoint's security requirements.
func (ch *check) isCredential(in, name string) bool {
	for _, req := range ch.match.Endpoint.Security {
		for _, s := range req.Schemes {
			if s.Type == "apiKey" && s.In == in && strings.EqualFold(s.ParamName, name) {
				return true
			}
		}
	}
	return false
}

func (ch *check) checkAuthorization() {
	e := ch.match.Endpoint
	if len(e.Security) == 0 {
		return
	}
	var alternatives []string
	for _, req := range e.Security {
		if ch.satisfies(req) {
			return
		}
		names := make([]string, len(req.Schemes))
		for i, s := range req.Schemes {
			names[i] = s.Name
		}
		alternatives = append(alternatives, strings.Join(names, " and "))
	}
	v := types.NewViolation(types.CodeRequestAuthorizationMissing,
		fmt.Sprintf("%s %s requires authorization: %s", e.Method, e.Template, strings.Join(alternatives, " or ")))
	ch.add(v, "request.headers", e.Location+".security")
}

// satisfies reports whether the request carries every credential of req.
func (ch *check) satisfies(req types.SecurityRequirement) bool {
	r := ch.interaction.Request
	for _, s := range req.Schemes {
		switch s.Type {
		case "apiKey":
			var present bool
			switch s.In {
			case types.InHeader:
				present = r.Headers.Has(s.ParamName)
			case types.InQuery:
				_, present = r.Query[s.ParamName]
			case types.InCookie:
				_, present = parseCookies(r.Headers["cookie"])[s.ParamName]
			}
			if !present {
				return false
			}
		case "http":
			auth := r.Headers.Get("authorization")
			if auth == "" {
				return false
			}
			if s.Scheme != "" {
				prefix, _, _ := strings.Cut(auth, " ")
				if !strings.EqualFold(prefix, s.Scheme) {
					return false
				}
			}
		default:
			// oauth2 and openIdConnect tokens travel as bearer credentials.
			if r.Headers.Get("authorization") == "" {
				return false
			}
		}
	}
	return true
}

func (ch *check) checkRequestBody() {
	e := ch.match.Endpoint
	body := ch.interaction.Request.Body
	loc := ch.interaction.Location() + ".request.body"

	if !body.Present {
		if e.RequestBody != nil && e.RequestBody.Required {
			v := types.NewViolation(types.CodeRequestBodyIncompatible,
				fmt.Sprintf("%s %s requires a request body", e.Method, e.Template))
			v.Kind = types.KindMissing
			ch.add(v, "request.body", e.RequestBody.Location)
		}
		return
	}

	var content map[string]*types.MediaType
	specLoc := e.Location
	if e.RequestBody != nil {
		content = e.RequestBody.Content
		specLoc = e.RequestBody.Location
	}
	mt, media, ok := selectContent(content, ch.interaction.Request.Headers.Get("content-type"))
	if !ok {
		v := types.NewViolation(types.CodeRequestBodyUnknown,
			fmt.Sprintf("no request schema of %s %s matches the body", e.Method, e.Template))
		ch.add(v, "request.body", specLoc)
		return
	}
	if media.Schema == nil || !isJSON(mt) {
		return
	}
	issues := ch.requestMatcher.Validate(body.Value, media.Schema, loc)
	ch.addIssues(types.CodeRequestBodyIncompatible, "", issues, media.Location)
}

func parseCookies(values []string) map[string]string {
	out := map[string]string{}
	if len(values) == 0 {
		return out
	}
	r := http.Request{Header: http.Header{"Cookie": values}}
	for _, c := range r.Cookies() {
		if _, ok := out[c.Name]; !ok {
			out[c.Name] = c.Value
		}
	}
	return out
}
