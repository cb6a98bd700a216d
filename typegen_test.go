package toolspec

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weatherArgsSchema = `{
	"type":"object",
	"required":["city"],
	"properties":{
		"city":{"type":"string","description":"City name","minLength":1},
		"days":{"type":"integer","exclusiveMinimum":0,"maximum":14},
		"unit":{"enum":["c","f"]},
		"location":{"type":"object","properties":{"lat":{"type":"number"},"lon":{"type":"number"}}},
		"tags":{"type":"array","items":{"type":"string"},"uniqueItems":true},
		"note":{"type":["string","null"]},
		"extra":{}
	}
}`

// structTags parses a generated file and returns the json tag of every field of the named
// struct, keyed by field name.
func structTags(t *testing.T, src, typeName string) map[string]string {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), "types.go", src, parser.ParseComments)
	require.NoError(t, err, src)
	tags := make(map[string]string)
	ast.Inspect(f, func(n ast.Node) bool {
		spec, ok := n.(*ast.TypeSpec)
		if !ok || spec.Name.Name != typeName {
			return true
		}
		st, ok := spec.Type.(*ast.StructType)
		require.True(t, ok, "%s is not a struct", typeName)
		for _, field := range st.Fields.List {
			require.Len(t, field.Names, 1, "embedded field in %s", typeName)
			tag := ""
			if field.Tag != nil {
				raw, err := strconv.Unquote(field.Tag.Value)
				require.NoError(t, err)
				tag = reflect.StructTag(raw).Get("json")
			}
			tags[field.Names[0].Name] = tag
		}
		return false
	})
	return tags
}

func TestGenerateTypeText(t *testing.T) {
	src, err := GenerateTypeText(context.Background(), schemaOf(t, weatherArgsSchema), TypeOptions{
		TypeName:    "weather_args",
		PackageName: "tools",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(src, "package tools\n"), src)
	assert.NotContains(t, src, "Code generated")
	for _, pattern := range []string{
		`type WeatherArgs struct \{`,
		"City\\s+string\\s+`json:\"city\"`",
		`// City name`,
		"Days\\s+\\*int\\s+`json:\"days,omitempty\"`",
		`// Days corresponds to the JSON schema field "days"\.`,
		"Unit\\s+\\*WeatherArgsUnit\\s+`json:\"unit,omitempty\"`",
		`type WeatherArgsUnit string`,
		`const WeatherArgsUnitC WeatherArgsUnit = "c"`,
		`const WeatherArgsUnitF WeatherArgsUnit = "f"`,
		`Location\s+\*WeatherArgsLocation\s`,
		`type WeatherArgsLocation struct \{`,
		`Lat\s+\*float64`,
		`Tags\s+\[\]string`,
		`Note\s+\*string`,
		`Extra\s+interface\{\}`,
	} {
		assert.Regexp(t, pattern, src)
	}

	assert.Equal(t, map[string]string{
		"City":     "city",
		"Days":     "days,omitempty",
		"Extra":    "extra,omitempty",
		"Location": "location,omitempty",
		"Note":     "note,omitempty",
		"Tags":     "tags,omitempty",
		"Unit":     "unit,omitempty",
	}, structTags(t, src, "WeatherArgs"))
}

func TestGenerateTypeText_DefaultName(t *testing.T) {
	src, err := GenerateTypeText(context.Background(), schemaOf(t, `{"type":"array","items":{"type":"boolean"}}`), TypeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "type Root []bool\n", src)
}

func TestGenerateTypeText_AllOfMergesObjects(t *testing.T) {
	src, err := GenerateTypeText(context.Background(), schemaOf(t, `{"allOf":[
		{"type":"object","properties":{"a":{"type":"string"}},"required":["a"]},
		{"properties":{"b":{"type":"boolean"}}}
	]}`), TypeOptions{TypeName: "Merged"})
	require.NoError(t, err)
	assert.Regexp(t, "A\\s+string\\s+`json:\"a\"`", src)
	assert.Regexp(t, "B\\s+\\*bool\\s+`json:\"b,omitempty\"`", src)
}

func TestGenerateTypeText_Maps(t *testing.T) {
	src, err := GenerateTypeText(context.Background(),
		schemaOf(t, `{"type":"object","additionalProperties":{"type":"integer"}}`), TypeOptions{TypeName: "Counts"})
	require.NoError(t, err)
	assert.Equal(t, "type Counts map[string]int\n", src)
}

func TestGenerateTypeText_RootWithoutType(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		want   []string
	}{
		{"accept anything", `{}`, []string{"type Root any"}},
		{"mixed union", `{"anyOf":[{"type":"string"},{"type":"integer"}]}`, []string{"type Root any"}},
		{"string enum", `{"enum":["asc","desc"]}`, []string{"type Root string", `const RootAsc Root = "asc"`, `const RootDesc Root = "desc"`}},
		{"const", `{"const":"v1"}`, []string{"type Root string", `const RootV1 Root = "v1"`}},
		{"integer enum", `{"enum":[1,2,3]}`, []string{"type Root int"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := GenerateTypeText(context.Background(), schemaOf(t, tt.schema), TypeOptions{})
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, src, want)
			}
		})
	}
}

func TestGenerateTypeText_MultilineText(t *testing.T) {
	doc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"pattern":     "a\nb",
				"description": "Line one\nLine two",
			},
		},
	}
	src, err := GenerateTypeText(context.Background(), doc, TypeOptions{TypeName: "Args", PackageName: "tools"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Code": "code,omitempty"}, structTags(t, src, "Args"))
	assert.Contains(t, src, "// Line one\n")
	assert.Contains(t, src, "// Line two\n")
}

func TestGenerateTypeText_KeysNeedingEscapes(t *testing.T) {
	doc := map[string]any{
		"type":     "object",
		"required": []any{"a`b"},
		"properties": map[string]any{
			"a`b":       map[string]any{"type": "string"},
			`say "hi"`:  map[string]any{"type": "boolean"},
			"plain":     map[string]any{"type": "integer"},
			"tab\there": true,
		},
	}
	_, err := Compile(doc)
	require.NoError(t, err)

	src, err := GenerateTypeText(context.Background(), doc, TypeOptions{TypeName: "Args", PackageName: "tools"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"AB":      "a`b",
		"SayHi":   `say "hi",omitempty`,
		"Plain":   "plain,omitempty",
		"TabHere": "tab\there,omitempty",
	}, structTags(t, src, "Args"))
	assert.NotContains(t, src, "toolspecEscapedKey")
	assert.Contains(t, src, `"a`+"`"+`b"`, "the default field comment names the real key")
}

func TestGenerateTypeText_Initialisms(t *testing.T) {
	src, err := GenerateTypeText(context.Background(), schemaOf(t, `{
		"type":"object",
		"properties":{"user_id":{"type":"string"},"api_url":{"type":"string"}}
	}`), TypeOptions{TypeName: "Ref", PackageName: "tools"})
	require.NoError(t, err)
	tags := structTags(t, src, "Ref")
	assert.Contains(t, tags, "UserID")
	assert.Contains(t, tags, "APIURL")
}

func TestGenerateTypeText_DoesNotMutateInput(t *testing.T) {
	const raw = `{"type":"object","required":["a`+"`"+`b"],"properties":{"a`+"`"+`b":{"const":1},"all":{"allOf":[{"properties":{"x":{}}}]}}}`
	doc := schemaOf(t, raw)
	_, err := GenerateTypeText(context.Background(), doc, TypeOptions{})
	require.NoError(t, err)
	assert.Equal(t, schemaOf(t, raw), doc)
}

func TestGenerateTypeText_UnsupportedConstructs(t *testing.T) {
	for schema, ptr := range map[string]string{
		`{"type":"object","properties":{"a":{"$ref":"#/$defs/a"}}}`: "/properties/a/$ref",
		`{"type":"array"}`:                          "",
		`{"type":"object","properties":{"t":{"type":"tuple"}}}`: "/properties/t/type",
		`{"anyOf":[{"type":"string"},{"$ref":"#"}]}`:            "/anyOf/1/$ref",
		`{"type":"object","properties":{"tags":{"type":[]}}}`:   "/properties/tags/type",
	} {
		_, err := GenerateTypeText(context.Background(), schemaOf(t, schema), TypeOptions{})
		var sce *SchemaConversionError
		require.ErrorAs(t, err, &sce, schema)
		assert.Equal(t, ptr, sce.Pointer, schema)
	}

	_, err := GenerateTypeText(context.Background(), nil, TypeOptions{})
	var sce *SchemaConversionError
	require.ErrorAs(t, err, &sce)
}

func TestGenerateTypeText_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := GenerateTypeText(ctx, schemaOf(t, `{"type":"string"}`), TypeOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExportedName(t *testing.T) {
	for in, want := range map[string]string{
		"first_name": "FirstName",
		"user-id":    "UserID",
		"apiURL":     "ApiURL",
		"2fa":        "X2fa",
		"$":          "Field",
		"city":       "City",
		"a`b":        "AB",
	} {
		assert.Equal(t, want, exportedName(in), in)
	}
}

func ExampleGenerateTypeText() {
	src, err := GenerateTypeText(context.Background(), map[string]any{
		"type":     "object",
		"required": []any{"city"},
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
	}, TypeOptions{TypeName: "Args"})
	if err != nil {
		panic(err)
	}
	fmt.Print(src)
	// Output:
	// type Args struct {
	// 	// City corresponds to the JSON schema field "city".
	// 	City string `json:"city"`
	// }
}
