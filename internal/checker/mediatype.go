package checker

import (
	"mime"
	"sort"
	"strings"

	"pact-verifier/internal/types"
)

// parseMediaType returns the lower-cased type/subtype of a Content-Type or
// Accept entry without its parameters.
func parseMediaType(value string) string {
	mt, _, err := mime.ParseMediaType(value)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
	}
	return strings.ToLower(mt)
}

// lookupContent finds the declared entry for a media type: exact match first,
// then "type/*", then "*/*".
func lookupContent(content map[string]*types.MediaType, mediaType string) (string, *types.MediaType, bool) {
	if mediaType == "" {
		return "", nil, false
	}
	if v, ok := content[mediaType]; ok {
		return mediaType, v, true
	}
	i := strings.IndexByte(mediaType, '/')
	if i < 0 {
		return "", nil, false
	}
	wildcard := mediaType[:i] + "/*"
	if v, ok := content[wildcard]; ok {
		return wildcard, v, true
	}
	if v, ok := content["*/*"]; ok {
		return "*/*", v, true
	}
	return "", nil, false
}

// selectContent picks the declared entry a body should be checked against.
// Without a Content-Type the only declared media type is used, or else the
// first JSON one.
func selectContent(content map[string]*types.MediaType, contentType string) (string, *types.MediaType, bool) {
	if contentType != "" {
		return lookupContent(content, parseMediaType(contentType))
	}
	declared := sortedKeys(content)
	if len(declared) == 1 {
		return declared[0], content[declared[0]], true
	}
	for _, mt := range declared {
		if isJSON(mt) {
			return mt, content[mt], true
		}
	}
	return "", nil, false
}

// acceptable reports whether any media range of an Accept header matches any
// produced media type. Ranges with q=0 are ignored.
func acceptable(accept []string, produced []string) bool {
	for _, header := range accept {
		for _, entry := range strings.Split(header, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			mt, params, err := mime.ParseMediaType(entry)
			if err != nil {
				continue
			}
			if q, ok := params["q"]; ok && strings.Trim(q, "0.") == "" {
				continue
			}
			for _, p := range produced {
				if rangeMatches(strings.ToLower(mt), p) {
					return true
				}
			}
		}
	}
	return false
}

// rangeMatches compares two media types where either side may use wildcards.
func rangeMatches(a, b string) bool {
	at, as, _ := strings.Cut(a, "/")
	bt, bs, _ := strings.Cut(b, "/")
	if at != "*" && bt != "*" && at != bt {
		return false
	}
	return as == "*" || bs == "*" || as == bs
}

// isJSON reports whether bodies of the media type are JSON documents.
func isJSON(mediaType string) bool {
	mt := parseMediaType(mediaType)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
