package checker

import (
	"fmt"
	"strings"

	"pact-verifier/internal/schema"
	"pact-verifier/internal/types"
)

var wellKnownResponseHeaders = map[string]bool{
	"access-control-allow-origin": true,
	"cache-control":               true,
	"connection":                  true,
	"content-encoding":            true,
	"content-language":            true,
	"content-length":              true,
	"content-type":                true,
	"date":                        true,
	"etag":                        true,
	"expires":                     true,
	"last-modified":               true,
	"server":                      true,
	"set-cookie":                  true,
	"transfer-encoding":           true,
	"vary":                        true,
}

func (ch *check) checkResponseContentType() {
	def := ch.response
	ct := ch.interaction.Response.Headers.Get("content-type")
	if ct == "" {
		return
	}
	produces := sortedKeys(def.Content)
	if len(produces) == 0 {
		v := types.NewViolation(types.CodeResponseContentTypeUnknown,
			fmt.Sprintf("Content-Type %s is expected but response %s declares no body", ct, def.Status))
		v.Value = ct
		ch.add(v, "response.headers.content-type", def.Location)
		return
	}
	if _, _, ok := lookupContent(def.Content, parseMediaType(ct)); !ok {
		v := types.NewViolation(types.CodeResponseContentTypeIncompatible,
			fmt.Sprintf("Content-Type %s is not one of %s", ct, strings.Join(produces, ", ")))
		v.Value = ct
		v.Constraint = "produces: " + strings.Join(produces, ", ")
		ch.add(v, "response.headers.content-type", def.Location+".content")
	}
}

// checkResponseHeaders validates the headers the consumer relies on. Declared
// headers the consumer does not mention are not its concern.
func (ch *check) checkResponseHeaders() {
	def := ch.response
	headers := ch.interaction.Response.Headers
	base := ch.interaction.Location() + ".response.headers"

	for _, name := range sortedKeys(headers) {
		if p, ok := def.Headers[name]; ok {
			if p.Schema == nil {
				continue
			}
			loc := schema.JoinLocation(base, name)
			value := schema.Coerce(headers[name], p.Schema, ch.spec.Definitions)
			issues := ch.responseMatcher.Validate(value, p.Schema, loc)
			ch.addIssues(types.CodeResponseHeaderIncompatible, fmt.Sprintf("header '%s' ", name), issues, p.Location)
			continue
		}
		if wellKnownResponseHeaders[name] {
			continue
		}
		v := types.NewViolation(types.CodeResponseHeaderUnknown,
			fmt.Sprintf("header '%s' is not declared by response %s", name, def.Status))
		v.Value = headers.Get(name)
		ch.add(v, "response.headers."+name, def.Location+".headers")
	}
}

func (ch *check) checkResponseBody() {
	def := ch.response
	body := ch.interaction.Response.Body
	if !body.Present {
		return
	}
	mt, media, ok := selectContent(def.Content, ch.interaction.Response.Headers.Get("content-type"))
	if !ok {
		v := types.NewViolation(types.CodeResponseBodyUnknown,
			fmt.Sprintf("no schema of response %s matches the body", def.Status))
		ch.add(v, "response.body", def.Location)
		return
	}
	if media.Schema == nil || !isJSON(mt) {
		return
	}
	issues := ch.responseMatcher.Validate(body.Value, media.Schema, ch.interaction.Location()+".response.body")
	ch.addIssues(types.CodeResponseBodyIncompatible, "", issues, media.Location)
}
