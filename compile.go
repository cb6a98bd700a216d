package toolspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// checkFunc validates value located at path and returns the accepted value or its issues.
// Implementations never mutate value; objects and arrays are rebuilt.
type checkFunc func(value any, path string) (any, []Issue)

// Validator is a compiled schema. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	check   checkFunc
	pointer string
}

// Validate checks a decoded JSON value (as produced by encoding/json into any).
// It returns the accepted value, with undeclared object keys stripped when the policy says so,
// or a *ValidationError listing every issue.
func (v *Validator) Validate(value any) (any, error) {
	out, issues := v.check(value, "")
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return out, nil
}

// ValidateJSON decodes data (numbers kept as json.Number) and validates it.
// A decode failure is returned as is; it is not a *ValidationError.
func (v *Validator) ValidateJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v.Validate(value)
}

// Pointer returns the document pointer the validator was compiled at.
func (v *Validator) Pointer() string { return v.pointer }

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

type compileOptions struct {
	closedness Closedness
	pointer    string
}

// WithAdditionalProperties sets the policy for object nodes that do not set additionalProperties.
// additionalProperties: false is always Strict and true is always Passthrough. Default is Strip.
func WithAdditionalProperties(c Closedness) CompileOption {
	return func(o *compileOptions) {
		o.closedness = c
	}
}

// WithPointer sets the document pointer of the compiled node, e.g. "/inputSchema" when the
// node lives inside a manifest. Issues and errors are reported relative to it.
func WithPointer(pointer string) CompileOption {
	return func(o *compileOptions) {
		o.pointer = strings.TrimSuffix(pointer, "/")
	}
}

// Compile turns a schema node into a Validator. Unsupported constructs yield a
// *SchemaConversionError. The node is assumed to be well-formed (see ValidateSchema);
// it is read, never modified, and not retained.
func Compile(node map[string]any, opts ...CompileOption) (*Validator, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}
	if node == nil {
		return nil, &SchemaConversionError{Message: "schema must not be nil", Pointer: o.pointer}
	}
	c := compiler{closedness: o.closedness}
	check, err := c.compileNode(node, o.pointer)
	if err != nil {
		return nil, err
	}
	return &Validator{check: check, pointer: o.pointer}, nil
}

// compiler carries compile-wide settings. It is passed by value; the pointer is threaded
// through the recursion as an argument.
type compiler struct {
	closedness Closedness
}

// compileSchema compiles any schema-valued position: an object node or a boolean schema.
func (c compiler) compileSchema(schema any, ptr string) (checkFunc, error) {
	switch s := schema.(type) {
	case map[string]any:
		return c.compileNode(s, ptr)
	case bool:
		if s {
			return acceptAny, nil
		}
		return rejectAll(ptr), nil
	}
	return nil, &SchemaConversionError{Message: "schema must be an object or a boolean", Pointer: ptr}
}

func (c compiler) compileNode(node map[string]any, ptr string) (checkFunc, error) {
	kind, err := classify(node, ptr)
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindConst:
		return literalCheck(node["const"], joinPointer(ptr, "const")), nil
	case kindEnum:
		return c.compileEnum(node, ptr)
	case kindAnyOf:
		return c.compileUnion(node, "anyOf", ptr)
	case kindOneOf:
		// Same machinery as anyOf: at least one branch must accept, exclusivity is not checked.
		return c.compileUnion(node, "oneOf", ptr)
	case kindAllOf:
		return c.compileAllOf(node, ptr)
	case kindMultiType:
		return c.compileMultiType(node, ptr)
	case kindString:
		return compileString(node, ptr)
	case kindNumber:
		return compileNumber(node, ptr, false)
	case kindInteger:
		return compileNumber(node, ptr, true)
	case kindBoolean:
		return typeCheck(ptr, "boolean", isBool), nil
	case kindNull:
		return typeCheck(ptr, "null", isNull), nil
	case kindArray:
		return c.compileArray(node, ptr)
	case kindObject:
		return c.compileObject(node, ptr)
	case kindAny:
		// No type and no combinator: free-form field, anything goes.
		return acceptAny, nil
	}
	return nil, &SchemaConversionError{Message: fmt.Sprintf("unhandled node kind %d", kind), Pointer: ptr}
}

func acceptAny(value any, _ string) (any, []Issue) {
	return value, nil
}

func rejectAll(ptr string) checkFunc {
	return func(_ any, path string) (any, []Issue) {
		return nil, []Issue{{SchemaPointer: ptr, InstancePath: path, Message: "no value is allowed here"}}
	}
}

func literalCheck(literal any, ptr string) checkFunc {
	want := describeLiteral(literal)
	return func(value any, path string) (any, []Issue) {
		if jsonEqual(value, literal) {
			return value, nil
		}
		return nil, []Issue{{SchemaPointer: ptr, InstancePath: path, Message: "must equal " + want}}
	}
}

func (c compiler) compileEnum(node map[string]any, ptr string) (checkFunc, error) {
	members, err := schemaList(node, "enum", ptr)
	if err != nil {
		return nil, err
	}
	enumPtr := joinPointer(ptr, "enum")
	switch len(members) {
	case 0:
		return nil, &SchemaConversionError{Message: "enum must have at least one member", Pointer: enumPtr}
	case 1:
		return literalCheck(members[0], enumPtr), nil
	}
	allStrings := true
	for _, m := range members {
		if _, ok := m.(string); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		return stringEnumCheck(members, enumPtr), nil
	}
	arms := make([]checkFunc, len(members))
	for i, m := range members {
		arms[i] = literalCheck(m, indexPointer(enumPtr, i))
	}
	msg := "must be one of " + describeMembers(members)
	return func(value any, path string) (any, []Issue) {
		for _, arm := range arms {
			if out, issues := arm(value, path); len(issues) == 0 {
				return out, nil
			}
		}
		return nil, []Issue{{SchemaPointer: enumPtr, InstancePath: path, Message: msg}}
	}, nil
}

func stringEnumCheck(members []any, ptr string) checkFunc {
	allowed := make(map[string]struct{}, len(members))
	for _, m := range members {
		allowed[m.(string)] = struct{}{}
	}
	msg := "must be one of " + describeMembers(members)
	return func(value any, path string) (any, []Issue) {
		s, ok := value.(string)
		if !ok {
			return nil, []Issue{{SchemaPointer: ptr, InstancePath: path, Message: "expected string, received " + jsonTypeName(value)}}
		}
		if _, ok := allowed[s]; !ok {
			return nil, []Issue{{SchemaPointer: ptr, InstancePath: path, Message: msg}}
		}
		return value, nil
	}
}

// compileUnion compiles anyOf and oneOf. A single branch is returned unwrapped.
func (c compiler) compileUnion(node map[string]any, keyword, ptr string) (checkFunc, error) {
	branches, err := schemaList(node, keyword, ptr)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return nil, &SchemaConversionError{Message: keyword + " must have at least one branch", Pointer: joinPointer(ptr, keyword)}
	}
	checks := make([]checkFunc, len(branches))
	for i, b := range branches {
		checks[i], err = c.compileSchema(b, indexPointer(joinPointer(ptr, keyword), i))
		if err != nil {
			return nil, err
		}
	}
	if len(checks) == 1 {
		return checks[0], nil
	}
	unionPtr := joinPointer(ptr, keyword)
	msg := fmt.Sprintf("does not match any of the %d alternatives", len(checks))
	return func(value any, path string) (any, []Issue) {
		for _, check := range checks {
			if out, issues := check(value, path); len(issues) == 0 {
				return out, nil
			}
		}
		return nil, []Issue{{SchemaPointer: unionPtr, InstancePath: path, Message: msg}}
	}, nil
}

// compileAllOf intersects branches left to right; every branch sees the original value.
func (c compiler) compileAllOf(node map[string]any, ptr string) (checkFunc, error) {
	branches, err := schemaList(node, "allOf", ptr)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return acceptAny, nil
	}
	checks := make([]checkFunc, len(branches))
	for i, b := range branches {
		checks[i], err = c.compileSchema(b, indexPointer(joinPointer(ptr, "allOf"), i))
		if err != nil {
			return nil, err
		}
	}
	if len(checks) == 1 {
		return checks[0], nil
	}
	allPtr := joinPointer(ptr, "allOf")
	return func(value any, path string) (any, []Issue) {
		var issues []Issue
		var out any
		accepted := false
		for _, check := range checks {
			res, errs := check(value, path)
			if len(errs) > 0 {
				issues = append(issues, errs...)
				continue
			}
			if !accepted {
				out, accepted = res, true
				continue
			}
			merged, ok := mergeValues(out, res)
			if !ok {
				issues = append(issues, Issue{SchemaPointer: allPtr, InstancePath: path, Message: "allOf results could not be merged"})
				continue
			}
			out = merged
		}
		if len(issues) > 0 {
			return nil, issues
		}
		return out, nil
	}, nil
}

// compileMultiType rewrites {"type": [a, b]} into {"anyOf": [{..., "type": a}, {..., "type": b}]}.
func (c compiler) compileMultiType(node map[string]any, ptr string) (checkFunc, error) {
	types, err := typeList(node["type"], ptr)
	if err != nil {
		return nil, err
	}
	branches := make([]any, len(types))
	for i, t := range types {
		branch := make(map[string]any, len(node))
		for k, v := range node {
			branch[k] = v
		}
		branch["type"] = t
		branches[i] = branch
	}
	return c.compileUnion(map[string]any{"anyOf": branches}, "anyOf", ptr)
}

func typeCheck(ptr, want string, ok func(any) bool) checkFunc {
	typePtr := joinPointer(ptr, "type")
	return func(value any, path string) (any, []Issue) {
		if !ok(value) {
			return nil, []Issue{{SchemaPointer: typePtr, InstancePath: path, Message: "expected " + want + ", received " + jsonTypeName(value)}}
		}
		return value, nil
	}
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isNull(v any) bool { return v == nil }

func describeLiteral(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func describeMembers(members []any) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = describeLiteral(m)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
