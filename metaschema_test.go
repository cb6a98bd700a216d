package toolspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchema_WellFormed(t *testing.T) {
	for _, schema := range []string{
		`{}`,
		`{"type":"string"}`,
		`{"type":"object","properties":{"a":{"type":"array","items":{"type":"integer"}}},"required":["a"]}`,
		`{"type":"string","x-vendor-hint":{"ui":"textarea"}}`,
		`{"anyOf":[{"type":"string"},{"type":"null"}]}`,
	} {
		require.NoError(t, ValidateSchema(schemaOf(t, schema)), schema)
	}
}

func TestValidateSchema_NegativeMinLength(t *testing.T) {
	err := ValidateSchema(schemaOf(t, `{"type":"object","properties":{"name":{"type":"string","minLength":-1}}}`))
	var sve *SchemaValidationError
	require.ErrorAs(t, err, &sve)
	assert.True(t, IsSchemaError(err))
	require.NotEmpty(t, sve.Issues)
	assert.Equal(t, "/properties/name/minLength", sve.Issues[0].InstancePath)
	assert.NotEmpty(t, sve.Issues[0].Message)
}

func TestValidateSchema_CollectsAllIssues(t *testing.T) {
	err := ValidateSchema(schemaOf(t, `{"type":"object","properties":{
		"a":{"minLength":-1},
		"b":{"type":"strng"}
	}}`))
	var sve *SchemaValidationError
	require.ErrorAs(t, err, &sve)
	paths := make(map[string]bool)
	for _, is := range sve.Issues {
		paths[is.InstancePath] = true
	}
	assert.True(t, paths["/properties/a/minLength"], "issues: %v", sve.Issues)
	assert.True(t, paths["/properties/b/type"], "issues: %v", sve.Issues)
}

func TestValidateSchema_WithPointer(t *testing.T) {
	err := ValidateSchema(schemaOf(t, `{"type":"array","maxItems":"two","items":{}}`), WithPointer("/inputSchema"))
	var sve *SchemaValidationError
	require.ErrorAs(t, err, &sve)
	assert.Equal(t, "/inputSchema", sve.Pointer)
	assert.Equal(t, "/inputSchema/maxItems", sve.Issues[0].InstancePath)
	assert.Contains(t, err.Error(), "malformed schema at /inputSchema")
}

func TestValidateSchema_Nil(t *testing.T) {
	err := ValidateSchema(nil)
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
}

func TestValidateSchema_DoesNotMutate(t *testing.T) {
	schema := map[string]any{"type": "object", "required": []string{"a"}}
	require.NoError(t, ValidateSchema(schema))
	assert.Equal(t, map[string]any{"type": "object", "required": []string{"a"}}, schema)
}
