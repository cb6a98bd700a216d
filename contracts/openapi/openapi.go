// Package openapi turns the operations of an OpenAPI 3 document into tool manifests.
//
// Every operation becomes one toolspec.Manifest. Path, query and header parameters become
// properties of the input schema, a JSON request body becomes the "body" property, and the
// JSON schema of the first 2xx response becomes the output schema. OpenAPI 3.0 schema
// dialect (nullable, boolean exclusive bounds) is rewritten to its draft 2020-12 form.
package openapi

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/skosovsky/toolspec"
)

// BodyProperty is the input property that carries the request body.
const BodyProperty = "body"

const maxNameLength = 64

// Option configures Import.
type Option func(*options)

type options struct {
	prefix       string
	skipValidate bool
}

// WithNamePrefix prepends prefix to every generated tool name.
func WithNamePrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithoutDocumentValidation skips the structural validation of the OpenAPI document.
func WithoutDocumentValidation() Option {
	return func(o *options) {
		o.skipValidate = true
	}
}

// Operation is an imported operation together with its HTTP routing data.
type Operation struct {
	Manifest *toolspec.Manifest
	Method   string
	Path     string
	// In maps every non-body input property to its parameter location (path, query, header, cookie).
	In map[string]string
}

// Import loads an OpenAPI 3 document (JSON or YAML) and returns one Operation per
// operation, ordered by path and then by method.
func Import(ctx context.Context, data []byte, opts ...Option) ([]Operation, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if !o.skipValidate {
		if err := doc.Validate(ctx); err != nil {
			return nil, fmt.Errorf("validate openapi document: %w", err)
		}
	}
	if doc.Paths == nil {
		return nil, nil
	}

	version := ""
	if doc.Info != nil {
		version = doc.Info.Version
	}
	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out []Operation
	seen := make(map[string]string)
	for _, path := range keys {
		item := paths[path]
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		slices.Sort(methods)
		for _, method := range methods {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			op, err := convertOperation(method, path, item, ops[method], o.prefix, version)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", method, path, err)
			}
			if prev, dup := seen[op.Manifest.Name]; dup {
				return nil, fmt.Errorf("%s %s: tool name %q already used by %s", method, path, op.Manifest.Name, prev)
			}
			seen[op.Manifest.Name] = method + " " + path
			out = append(out, op)
		}
	}
	return out, nil
}

// ImportFile reads path and calls Import.
func ImportFile(ctx context.Context, path string, opts ...Option) ([]Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read openapi document: %w", err)
	}
	return Import(ctx, data, opts...)
}

// Manifests returns the manifests of ops.
func Manifests(ops []Operation) []*toolspec.Manifest {
	out := make([]*toolspec.Manifest, len(ops))
	for i, op := range ops {
		out[i] = op.Manifest
	}
	return out
}

func convertOperation(method, path string, item *openapi3.PathItem, op *openapi3.Operation, prefix, version string) (Operation, error) {
	name := op.OperationID
	if name == "" {
		name = strings.ToLower(method) + "_" + path
	}
	m := &toolspec.Manifest{
		Name:        toolName(prefix + name),
		Description: description(method, path, op),
		Tags:        slices.Clone(op.Tags),
		Version:     version,
		Dangerous:   !safeMethod(method),
	}

	props := make(map[string]any)
	var required []string
	in := make(map[string]string)
	// Operation parameters override path item parameters with the same name and location.
	params := make(map[string]*openapi3.Parameter)
	var order []string
	for _, group := range []openapi3.Parameters{item.Parameters, op.Parameters} {
		for _, ref := range group {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			key := p.In + ":" + p.Name
			if _, ok := params[key]; !ok {
				order = append(order, key)
			}
			params[key] = p
		}
	}
	for _, key := range order {
		p := params[key]
		if prev, clash := in[p.Name]; clash {
			return Operation{}, fmt.Errorf("parameter %q appears in both %s and %s", p.Name, prev, p.In)
		}
		var s map[string]any
		var err error
		if p.Schema != nil {
			s, err = convertSchema(p.Schema)
		} else if mt := jsonMedia(p.Content); mt != nil {
			s, err = convertSchema(mt.Schema)
		} else {
			s = map[string]any{}
		}
		if err != nil {
			return Operation{}, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if p.Description != "" {
			if _, has := s["description"]; !has {
				s["description"] = p.Description
			}
		}
		props[p.Name] = s
		in[p.Name] = p.In
		if p.Required || p.In == openapi3.ParameterInPath {
			required = append(required, p.Name)
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if mt := jsonMedia(op.RequestBody.Value.Content); mt != nil {
			if _, clash := in[BodyProperty]; clash {
				return Operation{}, fmt.Errorf("parameter %q collides with the request body", BodyProperty)
			}
			s, err := convertSchema(mt.Schema)
			if err != nil {
				return Operation{}, fmt.Errorf("request body: %w", err)
			}
			props[BodyProperty] = s
			if op.RequestBody.Value.Required {
				required = append(required, BodyProperty)
			}
		}
	}

	input := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		input["required"] = required
	}
	m.InputSchema = input

	if s := successSchema(op.Responses); s != nil {
		out, err := convertSchema(s)
		if err != nil {
			return Operation{}, fmt.Errorf("response: %w", err)
		}
		m.OutputSchema = out
	}

	if err := m.Validate(); err != nil {
		return Operation{}, err
	}
	return Operation{Manifest: m, Method: method, Path: path, In: in}, nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func description(method, path string, op *openapi3.Operation) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{op.Summary, op.Description} {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(parts, s) {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return method + " " + path
	}
	return strings.Join(parts, "\n\n")
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// toolName maps s onto the manifest name alphabet.
func toolName(s string) string {
	s = strings.Trim(invalidNameChars.ReplaceAllString(s, "_"), "_")
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	return s
}

func jsonMedia(content openapi3.Content) *openapi3.MediaType {
	if content == nil {
		return nil
	}
	if mt := content.Get("application/json"); mt != nil {
		return mt
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if strings.HasSuffix(k, "+json") {
			return content[k]
		}
	}
	return nil
}

func successSchema(responses *openapi3.Responses) *openapi3.SchemaRef {
	if responses == nil {
		return nil
	}
	for code := http.StatusOK; code < 300; code++ {
		ref := responses.Status(code)
		if ref == nil || ref.Value == nil {
			continue
		}
		if mt := jsonMedia(ref.Value.Content); mt != nil && mt.Schema != nil {
			return mt.Schema
		}
	}
	return nil
}

var errNilSchema = errors.New("schema reference has no value")

// convertSchema renders ref as a draft 2020-12 schema. Components are inlined; a
// component that refers back to itself is left as a $ref to its component pointer.
func convertSchema(ref *openapi3.SchemaRef) (map[string]any, error) {
	return (&converter{active: make(map[*openapi3.Schema]bool)}).convert(ref)
}

type converter struct {
	active map[*openapi3.Schema]bool
}

func (c *converter) convert(ref *openapi3.SchemaRef) (map[string]any, error) {
	if ref == nil {
		return map[string]any{}, nil
	}
	if ref.Value == nil {
		if ref.Ref != "" {
			return map[string]any{"$ref": ref.Ref}, nil
		}
		return nil, errNilSchema
	}
	v := ref.Value
	if c.active[v] {
		return map[string]any{"$ref": cmp.Or(ref.Ref, "#")}, nil
	}
	c.active[v] = true
	defer delete(c.active, v)

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	// Children marshal as $ref; replace them with their resolved conversions.
	if len(v.Properties) > 0 {
		props := make(map[string]any, len(v.Properties))
		for name, child := range v.Properties {
			s, err := c.convert(child)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			props[name] = s
		}
		out["properties"] = props
	}
	if v.Items != nil {
		s, err := c.convert(v.Items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		out["items"] = s
	}
	if v.Not != nil {
		s, err := c.convert(v.Not)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		out["not"] = s
	}
	if v.AdditionalProperties.Schema != nil {
		s, err := c.convert(v.AdditionalProperties.Schema)
		if err != nil {
			return nil, fmt.Errorf("additionalProperties: %w", err)
		}
		out["additionalProperties"] = s
	}
	for keyword, refs := range map[string]openapi3.SchemaRefs{"anyOf": v.AnyOf, "oneOf": v.OneOf, "allOf": v.AllOf} {
		if len(refs) == 0 {
			continue
		}
		list := make([]any, len(refs))
		for i, child := range refs {
			s, err := c.convert(child)
			if err != nil {
				return nil, fmt.Errorf("%s/%d: %w", keyword, i, err)
			}
			list[i] = s
		}
		out[keyword] = list
	}

	rewriteDialect(out)
	return out, nil
}

// rewriteDialect turns OpenAPI 3.0 schema keywords into their draft 2020-12 equivalents.
func rewriteDialect(s map[string]any) {
	if nullable, _ := s["nullable"].(bool); nullable {
		switch t := s["type"].(type) {
		case string:
			s["type"] = []any{t, "null"}
		case []any:
			if !slices.Contains(t, any("null")) {
				s["type"] = append(t, "null")
			}
		}
		if enum, ok := s["enum"].([]any); ok && !slices.Contains(enum, nil) {
			s["enum"] = append(enum, nil)
		}
	}
	delete(s, "nullable")
	exclusiveBound(s, "exclusiveMinimum", "minimum")
	exclusiveBound(s, "exclusiveMaximum", "maximum")
}

// exclusiveBound rewrites a boolean exclusive flag into the numeric form.
func exclusiveBound(s map[string]any, flag, bound string) {
	b, ok := s[flag].(bool)
	if !ok {
		return
	}
	delete(s, flag)
	if !b {
		return
	}
	if v, has := s[bound]; has {
		s[flag] = v
		delete(s, bound)
	}
}
