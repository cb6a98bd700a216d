package openapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolspec"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const petstore = `
openapi: 3.0.3
info:
  title: Pets
  version: 1.4.0
paths:
  /pets/{petId}:
    parameters:
      - name: petId
        in: path
        required: true
        schema:
          type: integer
          minimum: 1
    get:
      operationId: getPet
      summary: Get a pet
      tags: [pets]
      parameters:
        - name: verbose
          in: query
          description: Include history
          schema:
            type: boolean
      responses:
        '200':
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
  /pets:
    post:
      summary: Create a pet
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Pet'
      responses:
        '201':
          description: created
components:
  schemas:
    Pet:
      type: object
      required: [name]
      properties:
        name:
          type: string
          minLength: 1
        weight:
          type: number
          minimum: 0
          exclusiveMinimum: true
        nickname:
          type: string
          nullable: true
`

func importPetstore(t *testing.T) []Operation {
	t.Helper()
	ops, err := Import(context.Background(), []byte(petstore))
	require.NoError(t, err)
	require.Len(t, ops, 2)
	return ops
}

func TestImport(t *testing.T) {
	ops := importPetstore(t)

	create := ops[0].Manifest
	assert.Equal(t, "post_pets", create.Name)
	assert.Equal(t, "Create a pet", create.Description)
	assert.True(t, create.Dangerous)
	assert.Equal(t, "1.4.0", create.Version)
	assert.Equal(t, []string{"body"}, create.InputSchema["required"])
	assert.Nil(t, create.OutputSchema, "201 without content has no output schema")

	get := ops[1]
	assert.Equal(t, "getPet", get.Manifest.Name)
	assert.Equal(t, http.MethodGet, get.Method)
	assert.Equal(t, "/pets/{petId}", get.Path)
	assert.False(t, get.Manifest.Dangerous)
	assert.Equal(t, []string{"pets"}, get.Manifest.Tags)
	assert.Equal(t, map[string]string{"petId": "path", "verbose": "query"}, get.In)
	props := get.Manifest.InputSchema["properties"].(map[string]any)
	assert.Equal(t, "Include history", props["verbose"].(map[string]any)["description"])
	assert.Equal(t, []string{"petId"}, get.Manifest.InputSchema["required"])
}

func TestImport_RewritesDialect(t *testing.T) {
	ops := importPetstore(t)
	out := ops[1].Manifest.OutputSchema
	require.NotNil(t, out)
	props := out["properties"].(map[string]any)

	weight := props["weight"].(map[string]any)
	assert.InDelta(t, 0.0, weight["exclusiveMinimum"], 0)
	assert.NotContains(t, weight, "minimum")

	nickname := props["nickname"].(map[string]any)
	assert.Equal(t, []any{"string", "null"}, nickname["type"])
	assert.NotContains(t, nickname, "nullable")

	require.NoError(t, toolspec.ValidateSchema(out))
}

func TestImport_ManifestsCompile(t *testing.T) {
	ops := importPetstore(t)
	cm, err := ops[1].Manifest.Compile()
	require.NoError(t, err)

	_, err = cm.Input.Validate(map[string]any{"petId": 3.0})
	require.NoError(t, err)
	_, err = cm.Input.Validate(map[string]any{"petId": 0.0})
	require.Error(t, err)

	_, err = cm.Output.Validate(map[string]any{"name": "Rex", "nickname": nil})
	require.NoError(t, err)
	_, err = cm.Output.Validate(map[string]any{"name": "Rex", "weight": 0.0})
	var ve *toolspec.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "/outputSchema/properties/weight/exclusiveMinimum", ve.Issues[0].SchemaPointer)
}

func TestImport_Options(t *testing.T) {
	ops, err := Import(context.Background(), []byte(petstore), WithNamePrefix("petstore."))
	require.NoError(t, err)
	names := make([]string, 0, len(ops))
	for _, m := range Manifests(ops) {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"petstore.post_pets", "petstore.getPet"}, names)
}

func TestImport_RecursiveSchema(t *testing.T) {
	doc := `{
		"openapi": "3.0.3",
		"info": {"title": "Tree", "version": "1"},
		"paths": {"/tree": {"get": {
			"operationId": "getTree",
			"responses": {"200": {"description": "ok", "content": {"application/json": {
				"schema": {"$ref": "#/components/schemas/Node"}}}}}
		}}},
		"components": {"schemas": {"Node": {
			"type": "object",
			"properties": {"children": {"type": "array", "items": {"$ref": "#/components/schemas/Node"}}}
		}}}
	}`
	ops, err := Import(context.Background(), []byte(doc))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	out := ops[0].Manifest.OutputSchema
	items := out["properties"].(map[string]any)["children"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, map[string]any{"$ref": "#/components/schemas/Node"}, items)

	_, err = ops[0].Manifest.Compile()
	require.Error(t, err, "recursive schemas are not compilable")
	assert.True(t, toolspec.IsSchemaError(err))
}

func TestImport_Errors(t *testing.T) {
	_, err := Import(context.Background(), []byte("openapi: [broken"))
	require.Error(t, err)

	_, err = Import(context.Background(), []byte(`{"openapi":"3.0.3","info":{"title":"x"},"paths":{}}`))
	require.Error(t, err, "info.version is required")

	dup := `{
		"openapi": "3.0.3",
		"info": {"title": "x", "version": "1"},
		"paths": {
			"/a": {"get": {"operationId": "same", "responses": {"200": {"description": "ok"}}}},
			"/b": {"get": {"operationId": "same", "responses": {"200": {"description": "ok"}}}}
		}
	}`
	_, err = Import(context.Background(), []byte(dup), WithoutDocumentValidation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"same"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Import(ctx, []byte(petstore), WithoutDocumentValidation())
	require.ErrorIs(t, err, context.Canceled)
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(petstore), 0o600))
	ops, err := ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	_, err = ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestToolName(t *testing.T) {
	assert.Equal(t, "get_pets_petId", toolName("get_/pets/{petId}"))
	assert.Equal(t, "list.users-v2", toolName("list.users-v2"))
	long := toolName("op_" + strings.Repeat("a", 100))
	assert.LessOrEqual(t, len(long), maxNameLength)
}

func TestRegister_Handler(t *testing.T) {
	var gotPath, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/pets/7":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"name":"Rex","owner":"ann"}`)
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
		default:
			http.Error(w, "no such pet", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	reg := toolspec.NewRegistry()
	require.NoError(t, Register(reg, importPetstore(t), srv.URL+"/", srv.Client()))

	res := reg.Execute(context.Background(), toolspec.ToolCall{
		ID: "1", ToolName: "getPet", Args: []byte(`{"petId":7,"verbose":true,"extra":"dropped"}`),
	})
	require.NoError(t, res.Error)
	assert.Equal(t, "/pets/7", gotPath)
	assert.Equal(t, "verbose=true", gotQuery)
	assert.JSONEq(t, `{"name":"Rex"}`, string(res.Result), "output is stripped to the declared properties")

	res = reg.Execute(context.Background(), toolspec.ToolCall{
		ID: "2", ToolName: "post_pets", Args: []byte(`{"body":{"name":"Tom","weight":3.5}}`),
	})
	require.NoError(t, res.Error)
	assert.JSONEq(t, `{"name":"Tom","weight":3.5}`, gotBody)
	assert.Equal(t, []byte("null"), res.Result)

	res = reg.Execute(context.Background(), toolspec.ToolCall{
		ID: "3", ToolName: "getPet", Args: []byte(`{"petId":8}`),
	})
	require.Error(t, res.Error)
	assert.True(t, toolspec.IsClientError(res.Error))
	assert.Contains(t, res.Error.Error(), "404")

	res = reg.Execute(context.Background(), toolspec.ToolCall{
		ID: "4", ToolName: "post_pets", Args: []byte(`{"body":{"name":""}}`),
	})
	require.Error(t, res.Error)
	assert.True(t, toolspec.IsClientError(res.Error), "invalid arguments never reach the server")
}
