package toolspec

// Keywords whose value is a map of name -> schema.
var schemaMapKeywords = []string{"properties", "patternProperties", "definitions", "$defs", "dependencies"}

// Keywords whose value is an array of schemas.
var schemaArrayKeywords = []string{"allOf", "anyOf", "oneOf", "prefixItems"}

// Keywords whose value is a single schema.
var schemaKeywords = []string{"contains", "not", "if", "then", "else"}

// Keywords that are a schema only when object-valued (booleans are left as is).
var objectSchemaKeywords = []string{"additionalProperties", "additionalItems", "propertyNames"}

// Normalize returns a deep copy of doc in which numeric exclusiveMinimum/exclusiveMaximum
// (exclusive bound given as the value) are rewritten to a plain minimum/maximum plus a boolean
// exclusiveMinimum/exclusiveMaximum flag, in every nested schema. The tighter of a plain and an
// exclusive bound wins. doc is not modified.
func Normalize(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	normalizeBound(out, "minimum", "exclusiveMinimum", func(exclusive, plain float64) bool { return exclusive >= plain })
	normalizeBound(out, "maximum", "exclusiveMaximum", func(exclusive, plain float64) bool { return exclusive <= plain })

	for _, kw := range schemaMapKeywords {
		m, ok := out[kw].(map[string]any)
		if !ok {
			continue
		}
		nm := make(map[string]any, len(m))
		for name, child := range m {
			nm[name] = normalizeSchema(child)
		}
		out[kw] = nm
	}
	for _, kw := range schemaArrayKeywords {
		if list, ok := normalizeList(out[kw]); ok {
			out[kw] = list
		}
	}
	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = Normalize(items)
	} else if list, ok := normalizeList(out["items"]); ok {
		out["items"] = list
	}
	for _, kw := range schemaKeywords {
		if child, ok := out[kw].(map[string]any); ok {
			out[kw] = Normalize(child)
		}
	}
	for _, kw := range objectSchemaKeywords {
		if child, ok := out[kw].(map[string]any); ok {
			out[kw] = Normalize(child)
		}
	}
	return out
}

// normalizeSchema normalizes schema-valued entries and leaves anything else (e.g. the string
// arrays of property dependencies) untouched.
func normalizeSchema(v any) any {
	if m, ok := v.(map[string]any); ok {
		return Normalize(m)
	}
	return v
}

// normalizeList normalizes a schema array in either shape Compile accepts ([]any or
// []map[string]any). The result is always []any.
func normalizeList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = normalizeSchema(s)
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = Normalize(s)
		}
		return out, true
	}
	return nil, false
}

// normalizeBound converts one numeric exclusive bound. tighter reports whether the exclusive
// bound is at least as restrictive as the plain one.
func normalizeBound(node map[string]any, plainKey, exclusiveKey string, tighter func(exclusive, plain float64) bool) {
	exclusive, ok := toFloat(node[exclusiveKey])
	if !ok {
		return
	}
	plain, hasPlain := toFloat(node[plainKey])
	if hasPlain && !tighter(exclusive, plain) {
		node[exclusiveKey] = false
		return
	}
	node[plainKey] = exclusive
	node[exclusiveKey] = true
}
