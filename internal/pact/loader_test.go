package pact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const v2Pact = `{
  "consumer": {"name": "web"},
  "provider": {"name": "users"},
  "interactions": [
    {
      "description": "create a user",
      "providerState": "no users",
      "request": {
        "method": "post",
        "path": "/users",
        "query": "dry=true&tag=a&tag=b",
        "headers": {"Content-Type": "application/json", "X-Trace": "1", "x-trace": "2"},
        "body": {"name": "Ann", "age": 30, "score": 1.5}
      },
      "response": {
        "status": 201,
        "headers": {"Location": "/users/1"},
        "body": null
      }
    },
    {
      "description": "list users",
      "request": {"method": "GET", "path": "/users?limit=10"},
      "response": {"status": 200}
    }
  ],
  "metadata": {"pactSpecification": {"version": "2.0.0"}}
}`

func TestLoadV2(t *testing.T) {
	file, err := Load([]byte(v2Pact))
	require.NoError(t, err)

	assert.Equal(t, "web", file.Consumer)
	assert.Equal(t, "users", file.Provider)
	assert.Equal(t, "2.0.0", file.SpecVersion)
	require.Len(t, file.Interactions, 2)

	create := file.Interactions[0]
	assert.Equal(t, 0, create.Index)
	assert.Equal(t, "no users", create.ProviderState)
	assert.Equal(t, "POST", create.Request.Method)
	assert.Equal(t, []string{"true"}, create.Request.Query["dry"])
	assert.Equal(t, []string{"a", "b"}, create.Request.Query["tag"])
	assert.Equal(t, []string{"1", "2"}, create.Request.Headers["x-trace"])
	assert.Equal(t, "application/json", create.Request.Headers.Get("Content-Type"))

	body, ok := create.Request.Body.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("30"), body["age"])
	assert.Equal(t, json.Number("1.5"), body["score"])

	assert.Equal(t, 201, create.Response.Status)
	assert.True(t, create.Response.Body.Present)
	assert.Nil(t, create.Response.Body.Value)

	list := file.Interactions[1]
	assert.Equal(t, "/users", list.Request.Path)
	assert.Equal(t, []string{"10"}, list.Request.Query["limit"])
	assert.False(t, list.Request.Body.Present)
	assert.False(t, list.Response.Body.Present)
}

func TestLoadV3(t *testing.T) {
	doc := `{
  "consumer": {"name": "web"},
  "provider": {"name": "users"},
  "interactions": [{
    "description": "search",
    "providerStates": [{"name": "user exists"}, {"name": "is admin"}],
    "request": {
      "method": "GET",
      "path": "/users",
      "query": {"q": ["ann"], "page": "2"},
      "headers": {"Accept": ["application/json", "text/plain"]}
    },
    "response": {"status": 200, "body": [1, 2]}
  }],
  "metadata": {"pactSpecification": {"version": "3.0.0"}}
}`
	file, err := Load([]byte(doc))
	require.NoError(t, err)
	require.Len(t, file.Interactions, 1)

	i := file.Interactions[0]
	assert.Equal(t, "user exists, is admin", i.ProviderState)
	assert.Equal(t, []string{"ann"}, i.Request.Query["q"])
	assert.Equal(t, []string{"2"}, i.Request.Query["page"])
	assert.Equal(t, []string{"application/json", "text/plain"}, i.Request.Headers["accept"])
	assert.Equal(t, []any{json.Number("1"), json.Number("2")}, i.Response.Body.Value)
}

func TestLoadV4(t *testing.T) {
	doc := `{
  "consumer": {"name": "web"},
  "provider": {"name": "users"},
  "interactions": [
    {
      "type": "Asynchronous/Messages",
      "description": "user created event"
    },
    {
      "type": "Synchronous/HTTP",
      "description": "create",
      "request": {
        "method": "POST",
        "path": "/users",
        "body": {"content": {"name": "Ann"}, "contentType": "application/json", "encoded": false}
      },
      "response": {
        "status": 200,
        "body": {"content": "eyJpZCI6MX0=", "contentType": "application/json", "encoded": "base64"}
      }
    }
  ],
  "metadata": {"pactSpecification": {"version": "4.0"}}
}`
	file, err := Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, file.Skipped)
	require.Len(t, file.Interactions, 1)

	i := file.Interactions[0]
	assert.Equal(t, 1, i.Index)
	assert.Equal(t, "application/json", i.Request.Headers.Get("content-type"))
	assert.Equal(t, map[string]any{"name": "Ann"}, i.Request.Body.Value)
	assert.Equal(t, map[string]any{"id": json.Number("1")}, i.Response.Body.Value)
}

func TestBodyObjectWithContentKeyIsNotUnwrapped(t *testing.T) {
	doc := `{"interactions": [{
  "request": {"method": "POST", "path": "/notes", "body": {"content": "hi", "author": "ann"}},
  "response": {"status": 204}
}]}`
	file, err := Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": "hi", "author": "ann"}, file.Interactions[0].Request.Body.Value)
}

func TestMalformedInteractions(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"invalid json", `{"interactions": [`, ""},
		{"interactions missing", `{"consumer": {"name": "x"}}`, ""},
		{"missing method", `{"interactions": [{"request": {"path": "/a"}, "response": {"status": 200}}]}`, "request.method"},
		{"missing path", `{"interactions": [{"request": {"method": "GET"}, "response": {"status": 200}}]}`, "request.path"},
		{"missing response", `{"interactions": [{"request": {"method": "GET", "path": "/a"}}]}`, "response"},
		{"missing status", `{"interactions": [{"request": {"method": "GET", "path": "/a"}, "response": {}}]}`, "response.status"},
		{"fractional status", `{"interactions": [{"request": {"method": "GET", "path": "/a"}, "response": {"status": 200.5}}]}`, "response.status"},
		{"status out of range", `{"interactions": [{"request": {"method": "GET", "path": "/a"}, "response": {"status": 99}}]}`, "response.status"},
		{"bad header value", `{"interactions": [{"request": {"method": "GET", "path": "/a", "headers": {"x": 1}}, "response": {"status": 200}}]}`, "request.headers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedInteraction))

			var ie *InteractionError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.field, ie.Field)
		})
	}
}

func TestInteractionErrorMessage(t *testing.T) {
	err := &InteractionError{Index: 3, Field: "response.status", Reason: "status is required"}
	assert.Equal(t, "malformed interaction at interaction[3].response.status: status is required", err.Error())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web-users.json")
	require.NoError(t, os.WriteFile(path, []byte(v2Pact), 0644))

	file, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, file.Interactions, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
