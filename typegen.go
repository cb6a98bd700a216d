package toolspec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"go/format"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/atombender/go-jsonschema/pkg/generator"
	"github.com/atombender/go-jsonschema/pkg/schemas"
)

// TypeOptions configures GenerateTypeText.
type TypeOptions struct {
	// TypeName is the name of the root declaration. Defaults to "Root".
	TypeName string
	// PackageName, when set, makes the output a complete file with a package clause.
	PackageName string
}

const (
	typeSchemaID   = "urn:toolspec:typegen"
	typeSchemaFile = "schema.json"
	typeOutputFile = "types.go"
	// Package used when only declarations are requested; its clause is cut from the output.
	typeScratchPackage = "types"
)

// GenerateTypeText emits Go type declarations describing values accepted by doc.
// The document is normalized first (see Normalize) and handed to go-jsonschema's generator
// in models-only mode. Output is gofmt-formatted and carries no banner comment.
// Nested objects with properties become their own named types; enumerations become named
// types with constants.
//
// It accepts the same grammar as Compile and rejects $ref, unknown types and arrays without
// items with a *SchemaConversionError. It does no I/O; ctx is only checked before starting.
func GenerateTypeText(ctx context.Context, doc map[string]any, opts TypeOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc == nil {
		return "", &SchemaConversionError{Message: "schema must not be nil"}
	}
	if _, err := Compile(doc); err != nil {
		return "", err
	}
	name := "Root"
	if opts.TypeName != "" {
		name = exportedName(opts.TypeName)
	}
	pkg := opts.PackageName
	if pkg == "" {
		pkg = typeScratchPackage
	}

	node := Normalize(doc)
	delete(node, "$defs")
	delete(node, "definitions")
	escaped := make(map[string]string)
	prepareTypeNode(node, escaped)
	inferRootType(node)

	schema, err := toGeneratorSchema(node)
	if err != nil {
		return "", err
	}
	gen, err := generator.New(generator.Config{
		SchemaMappings: []generator.SchemaMapping{{
			SchemaID:    typeSchemaID,
			PackageName: pkg,
			RootType:    name,
			OutputName:  typeOutputFile,
		}},
		DefaultPackageName: pkg,
		DefaultOutputName:  typeOutputFile,
		Capitalizations:    slices.Sorted(maps.Values(initialisms)),
		Tags:               []string{"json"},
		OnlyModels:         true,
		Warner: func(msg string) {
			slog.Debug("type generation", "type", name, "warning", msg)
		},
		Loader: memoryLoader{typeSchemaFile: schema},
	})
	if err != nil {
		return "", fmt.Errorf("type generator: %w", err)
	}
	if err := gen.DoFile(typeSchemaFile); err != nil {
		return "", &SchemaConversionError{Message: err.Error()}
	}
	src := string(gen.Sources()[typeOutputFile])
	return finishTypeText(src, name, escaped, opts.PackageName != "")
}

// memoryLoader serves already parsed schemas to the generator by file name.
type memoryLoader map[string]*schemas.Schema

func (l memoryLoader) Load(uri, _ string) (*schemas.Schema, error) {
	if s, ok := l[uri]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("schema %q is not loaded", uri)
}

func toGeneratorSchema(node map[string]any) (*schemas.Schema, error) {
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, &SchemaConversionError{Message: fmt.Sprintf("schema is not JSON-encodable: %v", err)}
	}
	schema, err := schemas.FromJSONReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &SchemaConversionError{Message: err.Error()}
	}
	if schema.ObjectAsType == nil {
		schema.ObjectAsType = &schemas.ObjectAsType{}
	}
	schema.ID = typeSchemaID
	return schema, nil
}

// prepareTypeNode rewrites a normalized node (and its subschemas) into the subset the
// generator handles: const becomes a one-member enum, enums with object or array members are
// dropped, object allOf branches are merged, and property keys that cannot sit inside a raw
// struct tag are swapped for placeholders recorded in escaped.
func prepareTypeNode(node map[string]any, escaped map[string]string) {
	if c, ok := node["const"]; ok {
		if _, hasEnum := node["enum"]; !hasEnum {
			node["enum"] = []any{c}
		}
		delete(node, "const")
	}
	if members, ok := node["enum"].([]any); ok && !scalarLiterals(members) {
		delete(node, "enum")
	}
	flattenAllOf(node)
	escapePropertyKeys(node, escaped)

	for _, kw := range schemaMapKeywords {
		if m, ok := node[kw].(map[string]any); ok {
			for _, child := range m {
				if c, ok := child.(map[string]any); ok {
					prepareTypeNode(c, escaped)
				}
			}
		}
	}
	for _, kw := range append([]string{"items"}, schemaArrayKeywords...) {
		if list, ok := node[kw].([]any); ok {
			for _, child := range list {
				if c, ok := child.(map[string]any); ok {
					prepareTypeNode(c, escaped)
				}
			}
		}
	}
	for _, kw := range append(append([]string{"items"}, schemaKeywords...), objectSchemaKeywords...) {
		if c, ok := node[kw].(map[string]any); ok {
			prepareTypeNode(c, escaped)
		}
	}
}

func scalarLiterals(members []any) bool {
	for _, m := range members {
		switch m.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// flattenAllOf merges allOf into one object node when every branch is an object.
func flattenAllOf(node map[string]any) {
	branches, ok := node["allOf"].([]any)
	if !ok || len(branches) == 0 {
		return
	}
	if t, ok := node["type"]; ok && t != "object" {
		return
	}
	props := make(map[string]any)
	required := make(map[string]struct{})
	parts := append([]any{node}, branches...)
	for i, b := range parts {
		m, ok := b.(map[string]any)
		if !ok || (i > 0 && !isObjectNode(m)) {
			return
		}
		if own, ok := m["properties"].(map[string]any); ok {
			for k, v := range own {
				props[k] = v
			}
		}
		req, _ := requiredKeys(m, "")
		for k := range req {
			required[k] = struct{}{}
		}
	}
	delete(node, "allOf")
	node["type"] = "object"
	node["properties"] = props
	node["required"] = keyList(required)
}

// escapePropertyKeys replaces keys holding a backtick, a quote, a backslash or a control
// character. The generated field keeps a name derived from the real key.
func escapePropertyKeys(node map[string]any, escaped map[string]string) {
	props, ok := node["properties"].(map[string]any)
	if !ok {
		return
	}
	renamed := make(map[string]string)
	for _, key := range sortedKeys(props) {
		if strings.ContainsAny(key, "`\"\\") || strings.IndexFunc(key, unicode.IsControl) >= 0 {
			renamed[key] = fmt.Sprintf("toolspecEscapedKey%d", len(escaped)+len(renamed))
		}
	}
	if len(renamed) == 0 {
		return
	}
	out := make(map[string]any, len(props))
	for key, child := range props {
		ph, ok := renamed[key]
		if !ok {
			out[key] = child
			continue
		}
		escaped[ph] = key
		m, isMap := child.(map[string]any)
		if !isMap {
			m = map[string]any{}
			if b, _ := child.(bool); !b {
				m["not"] = map[string]any{}
			}
		}
		m["goJSONSchema"] = map[string]any{"identifier": exportedName(key)}
		out[ph] = m
	}
	node["properties"] = out
	if req, err := requiredKeys(node, ""); err == nil && len(req) > 0 {
		list := make(map[string]struct{}, len(req))
		for k := range req {
			if ph, ok := renamed[k]; ok {
				k = ph
			}
			list[k] = struct{}{}
		}
		node["required"] = keyList(list)
	}
}

func keyList(set map[string]struct{}) []any {
	keys := sortedKeys(set)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

// inferRootType fills in "type" on a root the generator would otherwise skip.
func inferRootType(node map[string]any) {
	if _, ok := node["type"]; ok {
		return
	}
	if isObjectNode(node) {
		node["type"] = "object"
		return
	}
	if members, ok := node["enum"].([]any); ok {
		if t := literalJSONType(members); t != "" {
			node["type"] = t
		}
	}
}

// literalJSONType picks the JSON type shared by every literal, or "".
func literalJSONType(members []any) string {
	typ := ""
	for _, m := range members {
		var t string
		switch v := m.(type) {
		case string:
			t = "string"
		case bool:
			t = "boolean"
		default:
			f, ok := toFloat(v)
			switch {
			case !ok:
				return ""
			case math.Trunc(f) == f:
				t = "integer"
			default:
				t = "number"
			}
		}
		switch {
		case typ == "":
			typ = t
		case typ == t:
		case (typ == "integer" && t == "number") || (typ == "number" && t == "integer"):
			typ = "number"
		default:
			return ""
		}
	}
	return typ
}

// finishTypeText restores escaped keys, drops the banner (and the package clause when
// declarations only were asked for) and gofmts the result.
func finishTypeText(src, name string, escaped map[string]string, withPackage bool) (string, error) {
	for ph, key := range escaped {
		for _, suffix := range []string{"", ",omitempty"} {
			src = strings.ReplaceAll(src, "`json:\""+ph+suffix+"\"`", strconv.Quote("json:"+strconv.Quote(key+suffix)))
		}
		src = strings.ReplaceAll(src, strconv.Quote(ph), strconv.Quote(key))
	}
	lines := strings.Split(src, "\n")
	start := slices.IndexFunc(lines, func(l string) bool { return strings.HasPrefix(l, "package ") })
	if start < 0 {
		return "", fmt.Errorf("type generator produced no package clause")
	}
	if !withPackage {
		start++
	}
	body := strings.Join(lines[start:], "\n")
	if !declares(body, name) {
		body += fmt.Sprintf("\ntype %s any\n", name)
	}
	out, err := format.Source([]byte(strings.TrimSpace(body)))
	if err != nil {
		return "", fmt.Errorf("format type declarations: %w", err)
	}
	return strings.TrimSpace(string(out)) + "\n", nil
}

func declares(src, name string) bool {
	for _, l := range strings.Split(src, "\n") {
		if strings.HasPrefix(l, "type "+name+" ") {
			return true
		}
	}
	return false
}

var initialisms = map[string]string{
	"id": "ID", "url": "URL", "uri": "URI", "api": "API", "http": "HTTP", "json": "JSON", "ip": "IP", "uuid": "UUID",
}

// exportedName turns a JSON key such as "first_name" or "user-id" into an exported Go
// identifier ("FirstName", "UserID").
func exportedName(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, p := range parts {
		if up, ok := initialisms[strings.ToLower(p)]; ok {
			b.WriteString(up)
			continue
		}
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	name := b.String()
	if name == "" {
		return "Field"
	}
	if unicode.IsDigit([]rune(name)[0]) {
		return "X" + name
	}
	return name
}
