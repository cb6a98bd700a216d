package toolspec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"unit":  map[string]any{"type": "string", "enum": []any{"celsius", "fahrenheit"}},
			"place": map[string]any{"type": "object", "properties": map[string]any{"city": map[string]any{"type": "string"}}},
		},
		"required": []any{"unit"},
	}
}

// recordArgs returns a handler that stores the arguments it was called with.
func recordArgs(seen *[]byte) func(context.Context, []byte) ([]byte, error) {
	return func(_ context.Context, argsJSON []byte) ([]byte, error) {
		*seen = append([]byte(nil), argsJSON...)
		return []byte(`{}`), nil
	}
}

func TestNewDynamicTool_UnknownKeys(t *testing.T) {
	t.Parallel()
	args := []byte(`{"unit":"celsius","debug":true,"place":{"city":"Oslo","zip":"0150"}}`)

	tests := []struct {
		name    string
		opts    []ToolOption
		want    string
		rejects []string
	}{
		{name: "strip by default", want: `{"unit":"celsius","place":{"city":"Oslo"}}`},
		{name: "passthrough", opts: []ToolOption{WithUnknownKeys(Passthrough)}, want: string(args)},
		{name: "strict", opts: []ToolOption{WithUnknownKeys(Strict)}, rejects: []string{"/debug", "/place/zip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var seen []byte
			tool, err := NewDynamicTool("units", "Units", unitsSchema(), recordArgs(&seen), tt.opts...)
			require.NoError(t, err)

			_, err = tool.Execute(context.Background(), args)
			if tt.rejects == nil {
				require.NoError(t, err)
				assert.JSONEq(t, tt.want, string(seen))
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			paths := make([]string, len(ve.Issues))
			for i, is := range ve.Issues {
				paths[i] = is.InstancePath
				assert.Contains(t, is.SchemaPointer, "additionalProperties")
			}
			assert.ElementsMatch(t, tt.rejects, paths)
			assert.Nil(t, seen, "the handler must not run on rejected arguments")
		})
	}
}

func TestNewDynamicTool_RejectionIssues(t *testing.T) {
	t.Parallel()
	var seen []byte
	tool, err := NewDynamicTool("units", "Units", unitsSchema(), recordArgs(&seen))
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), []byte(`{"place":{"city":7}}`))
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	var ve *ValidationError
	require.ErrorAs(t, ce.Err, &ve)
	assert.ElementsMatch(t, []Issue{
		{SchemaPointer: "/required", InstancePath: "/unit", Message: "is required"},
		{SchemaPointer: "/properties/place/properties/city/type", InstancePath: "/place/city", Message: "expected string, received number"},
	}, ve.Issues)

	_, err = tool.Execute(context.Background(), []byte(`{"unit":"kelvin"}`))
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Issues, 1)
	assert.Equal(t, "/properties/unit/enum", ve.Issues[0].SchemaPointer)
	assert.Equal(t, "/unit", ve.Issues[0].InstancePath)
	assert.Nil(t, seen)
}

func TestValidatedExecute_LargeIntegers(t *testing.T) {
	t.Parallel()
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "integer", "minimum": 1}},
	}
	m := &Manifest{Name: "lookup", Description: "Look up a record", InputSchema: schema}

	var dynamicSeen, manifestSeen []byte
	dynamic, err := NewDynamicTool("lookup", "Look up a record", schema, recordArgs(&dynamicSeen))
	require.NoError(t, err)
	manifest, err := NewManifestTool(m, recordArgs(&manifestSeen))
	require.NoError(t, err)

	args := []byte(`{"id": 9007199254740993}`)
	_, err = dynamic.Execute(context.Background(), args)
	require.NoError(t, err)
	_, err = manifest.Execute(context.Background(), args)
	require.NoError(t, err)

	assert.Equal(t, `{"id":9007199254740993}`, string(dynamicSeen))
	assert.Equal(t, `{"id":9007199254740993}`, string(manifestSeen))
}

func TestNewDynamicTool_SchemaErrors(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, []byte) ([]byte, error) { return nil, nil }

	_, err := NewDynamicTool("bad", "Bad", map[string]any{"type": 123}, noop)
	var sve *SchemaValidationError
	require.ErrorAs(t, err, &sve)
	assert.True(t, IsSchemaError(err))

	_, err = NewDynamicTool("ref", "Ref", map[string]any{"$ref": "#/$defs/args"}, noop)
	var sce *SchemaConversionError
	require.ErrorAs(t, err, &sce)
	assert.Equal(t, "/$ref", sce.Pointer)
	assert.True(t, IsSchemaError(err))

	_, err = NewDynamicTool("nil", "Nil", nil, noop)
	require.Error(t, err)
	assert.False(t, IsSchemaError(err))

	_, err = NewDynamicTool("no_handler", "No handler", unitsSchema(), nil)
	assert.ErrorContains(t, err, "handler must not be nil")
}

func TestNewDynamicTool_ErrorClassification(t *testing.T) {
	t.Parallel()
	notFound := &ClientError{Reason: "no such city"}
	tool, err := NewDynamicTool("classify", "Classify", unitsSchema(), func(_ context.Context, args []byte) ([]byte, error) {
		if string(args) == `{"unit":"celsius"}` {
			return nil, notFound
		}
		return nil, errors.New("internal failure")
	})
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), []byte(`{"unit":"celsius"}`))
	assert.Same(t, notFound, err)

	_, err = tool.Execute(context.Background(), []byte(`{"unit":"fahrenheit"}`))
	assert.True(t, IsSystemError(err))
	assert.False(t, IsClientError(err))
}

func TestNewDynamicTool_MetadataOptions(t *testing.T) {
	t.Parallel()
	tool, err := NewDynamicTool("meta", "Meta", unitsSchema(), recordArgs(new([]byte)),
		WithTimeout(30*time.Second), WithTags("a", "b"), WithVersion("1.0"), WithDangerous())
	require.NoError(t, err)

	tm, ok := tool.(ToolMetadata)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, tm.Timeout())
	assert.Equal(t, []string{"a", "b"}, tm.Tags())
	assert.Equal(t, "1.0", tm.Version())
	assert.True(t, tm.IsDangerous())
}

func TestNewDynamicTool_StrictSchema(t *testing.T) {
	t.Parallel()
	var seen []byte
	tool, err := NewDynamicTool("strict_tool", "Strict", unitsSchema(), recordArgs(&seen), WithStrict())
	require.NoError(t, err)

	params := tool.Parameters()
	assert.Equal(t, false, params["additionalProperties"])
	assert.Equal(t, []any{"place", "unit"}, params["required"])
	place := params["properties"].(map[string]any)["place"].(map[string]any)
	assert.Equal(t, false, place["additionalProperties"])

	// Strict mode closes every object, so unknown keys are rejected even under Strip.
	_, err = tool.Execute(context.Background(), []byte(`{"unit":"celsius","place":{"city":"Oslo"},"debug":1}`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "/additionalProperties", ve.Issues[0].SchemaPointer)
	assert.Nil(t, seen)
}

func TestNewDynamicTool_IsolatesCallerSchema(t *testing.T) {
	t.Parallel()
	nested := map[string]any{
		"type":       "object",
		"$id":        "https://example.com/nested",
		"properties": map[string]any{"a": map[string]any{"type": "string"}},
	}
	schema := map[string]any{
		"type":       "object",
		"$id":        "https://example.com/root",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}, "nested": nested},
	}
	tool, err := NewDynamicTool("isolated", "Isolated", schema, recordArgs(new([]byte)), WithStrict())
	require.NoError(t, err)

	// Strict mode and $id stripping apply to the tool's own copy.
	assert.NotContains(t, schema, "required")
	assert.NotContains(t, nested, "additionalProperties")
	assert.Equal(t, "https://example.com/nested", nested["$id"])
	params := tool.Parameters()
	assert.NotContains(t, params, "$id")

	schema["properties"].(map[string]any)["y"] = map[string]any{"type": "string"}
	assert.NotContains(t, tool.Parameters()["properties"], "y")
}
