package toolspec

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// nodeKind is the closed set of schema node shapes the compiler understands.
type nodeKind int

const (
	kindAny nodeKind = iota
	kindConst
	kindEnum
	kindAnyOf
	kindOneOf
	kindAllOf
	kindMultiType
	kindString
	kindNumber
	kindInteger
	kindBoolean
	kindNull
	kindArray
	kindObject
)

var scalarKinds = map[string]nodeKind{
	"string":  kindString,
	"number":  kindNumber,
	"integer": kindInteger,
	"boolean": kindBoolean,
	"null":    kindNull,
	"array":   kindArray,
	"object":  kindObject,
}

// classify picks the node kind. The order of the checks is the precedence order:
// $ref, const, enum, anyOf, oneOf, allOf, type (array, then scalar), nothing. A node without
// type that carries object keywords is an object; anything else without type accepts anything.
func classify(node map[string]any, ptr string) (nodeKind, error) {
	if _, ok := node["$ref"]; ok {
		return 0, &SchemaConversionError{Message: "$ref is not supported", Pointer: joinPointer(ptr, "$ref")}
	}
	if _, ok := node["const"]; ok {
		return kindConst, nil
	}
	if _, ok := node["enum"]; ok {
		return kindEnum, nil
	}
	if _, ok := node["anyOf"]; ok {
		return kindAnyOf, nil
	}
	if _, ok := node["oneOf"]; ok {
		return kindOneOf, nil
	}
	if _, ok := node["allOf"]; ok {
		return kindAllOf, nil
	}
	typ, ok := node["type"]
	if !ok {
		if hasObjectKeywords(node) {
			return kindObject, nil
		}
		return kindAny, nil
	}
	switch t := typ.(type) {
	case []any:
		return kindMultiType, nil
	case []string:
		return kindMultiType, nil
	case string:
		kind, known := scalarKinds[t]
		if !known {
			return 0, &SchemaConversionError{Message: fmt.Sprintf("unknown type %q", t), Pointer: joinPointer(ptr, "type")}
		}
		return kind, nil
	default:
		return 0, &SchemaConversionError{Message: "type must be a string or an array of strings", Pointer: joinPointer(ptr, "type")}
	}
}

// typeList returns the entries of a multi-type "type" keyword. An empty list is an error.
func typeList(typ any, ptr string) ([]string, error) {
	typePtr := joinPointer(ptr, "type")
	var out []string
	switch t := typ.(type) {
	case []string:
		out = t
	case []any:
		out = make([]string, len(t))
		for i, v := range t {
			s, ok := v.(string)
			if !ok {
				return nil, &SchemaConversionError{Message: "type entries must be strings", Pointer: indexPointer(typePtr, i)}
			}
			out[i] = s
		}
	default:
		return nil, &SchemaConversionError{Message: "type must be a string or an array of strings", Pointer: typePtr}
	}
	if len(out) == 0 {
		return nil, &SchemaConversionError{Message: "type must have at least one entry", Pointer: typePtr}
	}
	return out, nil
}

// schemaList returns the members of an array-valued keyword (anyOf, oneOf, allOf, enum).
func schemaList(node map[string]any, keyword, ptr string) ([]any, error) {
	switch v := node[keyword].(type) {
	case []any:
		return v, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	}
	return nil, &SchemaConversionError{Message: keyword + " must be an array", Pointer: joinPointer(ptr, keyword)}
}

// Closedness is the policy applied to object keys that the schema does not declare.
type Closedness int

const (
	// Strip silently drops undeclared keys from the accepted value.
	Strip Closedness = iota
	// Passthrough keeps undeclared keys unvalidated.
	Passthrough
	// Strict rejects undeclared keys.
	Strict
)

func (c Closedness) String() string {
	switch c {
	case Strip:
		return "strip"
	case Passthrough:
		return "passthrough"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("Closedness(%d)", int(c))
}

// ParseClosedness parses "strip", "passthrough" or "strict" (case-insensitive).
func ParseClosedness(s string) (Closedness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strip", "":
		return Strip, nil
	case "passthrough":
		return Passthrough, nil
	case "strict":
		return Strict, nil
	}
	return Strip, fmt.Errorf("unknown additional properties policy %q", s)
}

// toFloat converts a JSON number in any of its decoded forms to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// nonNegativeInt reads an integer-valued keyword such as minLength.
func nonNegativeInt(node map[string]any, keyword, ptr string) (int, bool, error) {
	raw, ok := node[keyword]
	if !ok {
		return 0, false, nil
	}
	f, isNum := toFloat(raw)
	if !isNum || f < 0 || math.Trunc(f) != f {
		return 0, false, &SchemaConversionError{Message: keyword + " must be a non-negative integer", Pointer: joinPointer(ptr, keyword)}
	}
	return int(f), true, nil
}

// numberKeyword reads a number-valued keyword such as minimum.
func numberKeyword(node map[string]any, keyword, ptr string) (float64, bool, error) {
	raw, ok := node[keyword]
	if !ok {
		return 0, false, nil
	}
	f, isNum := toFloat(raw)
	if !isNum {
		return 0, false, &SchemaConversionError{Message: keyword + " must be a number", Pointer: joinPointer(ptr, keyword)}
	}
	return f, true, nil
}

// jsonTypeName names the JSON type of a decoded value for error messages.
func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// objectKeywords imply an object node when "type" is absent.
var objectKeywords = []string{"properties", "required", "additionalProperties"}

func hasObjectKeywords(node map[string]any) bool {
	for _, kw := range objectKeywords {
		if _, ok := node[kw]; ok {
			return true
		}
	}
	return false
}

// isObjectNode reports whether node compiles to an object check.
func isObjectNode(node map[string]any) bool {
	kind, err := classify(node, "")
	return err == nil && kind == kindObject
}
