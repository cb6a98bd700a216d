package toolspec

import (
	"fmt"
	"slices"
)

func (c compiler) compileArray(node map[string]any, ptr string) (checkFunc, error) {
	rawItems, ok := node["items"]
	if !ok {
		return nil, &SchemaConversionError{Message: "array schema requires items", Pointer: ptr}
	}
	itemsPtr := joinPointer(ptr, "items")
	if _, isTuple := rawItems.([]any); isTuple {
		return nil, &SchemaConversionError{Message: "tuple items are not supported", Pointer: itemsPtr}
	}
	item, err := c.compileSchema(rawItems, itemsPtr)
	if err != nil {
		return nil, err
	}
	minItems, hasMin, err := nonNegativeInt(node, "minItems", ptr)
	if err != nil {
		return nil, err
	}
	maxItems, hasMax, err := nonNegativeInt(node, "maxItems", ptr)
	if err != nil {
		return nil, err
	}
	unique, _ := node["uniqueItems"].(bool)

	typePtr := joinPointer(ptr, "type")
	return func(value any, path string) (any, []Issue) {
		arr, ok := value.([]any)
		if !ok {
			return nil, []Issue{{SchemaPointer: typePtr, InstancePath: path, Message: "expected array, received " + jsonTypeName(value)}}
		}
		var issues []Issue
		out := make([]any, len(arr))
		for i, el := range arr {
			res, errs := item(el, indexPointer(path, i))
			if len(errs) > 0 {
				issues = append(issues, errs...)
				out[i] = el
				continue
			}
			out[i] = res
		}
		if hasMin && len(arr) < minItems {
			issues = append(issues, Issue{SchemaPointer: joinPointer(ptr, "minItems"), InstancePath: path,
				Message: fmt.Sprintf("must contain at least %d items", minItems)})
		}
		if hasMax && len(arr) > maxItems {
			issues = append(issues, Issue{SchemaPointer: joinPointer(ptr, "maxItems"), InstancePath: path,
				Message: fmt.Sprintf("must contain at most %d items", maxItems)})
		}
		if unique {
			issues = append(issues, duplicateIssues(out, joinPointer(ptr, "uniqueItems"), path)...)
		}
		if len(issues) > 0 {
			return nil, issues
		}
		return out, nil
	}, nil
}

// duplicateIssues reports every index whose element equals an earlier one.
// Scanning continues past the first duplicate.
func duplicateIssues(items []any, ptr, path string) []Issue {
	var issues []Issue
	for j := 1; j < len(items); j++ {
		for i := range j {
			if jsonEqual(items[i], items[j]) {
				issues = append(issues, Issue{SchemaPointer: ptr, InstancePath: indexPointer(path, j),
					Message: fmt.Sprintf("duplicate of item %d", i)})
				break
			}
		}
	}
	return issues
}

type property struct {
	key      string
	check    checkFunc
	required bool
}

// unknownKeys is how an object node treats keys it does not declare.
type unknownKeys struct {
	mode     Closedness
	catchall checkFunc // set when additionalProperties is a schema
}

func (c compiler) compileObject(node map[string]any, ptr string) (checkFunc, error) {
	propsPtr := joinPointer(ptr, "properties")
	var declared map[string]any
	if raw, ok := node["properties"]; ok {
		declared, ok = raw.(map[string]any)
		if !ok {
			return nil, &SchemaConversionError{Message: "properties must be an object", Pointer: propsPtr}
		}
	}
	required, err := requiredKeys(node, ptr)
	if err != nil {
		return nil, err
	}

	props := make([]property, 0, len(declared))
	for _, k := range sortedKeys(declared) {
		check, err := c.compileSchema(declared[k], joinPointer(propsPtr, k))
		if err != nil {
			return nil, err
		}
		_, req := required[k]
		props = append(props, property{key: k, check: check, required: req})
	}
	// Required names without a property schema are still required; any value is accepted.
	for _, k := range sortedKeys(required) {
		if _, ok := declared[k]; !ok {
			props = append(props, property{key: k, check: acceptAny, required: true})
		}
	}

	unknown, err := c.resolveUnknownKeys(node, ptr)
	if err != nil {
		return nil, err
	}
	return objectCheck(props, unknown, ptr), nil
}

// resolveUnknownKeys applies the closedness rules: false is Strict, true is Passthrough,
// a schema validates every undeclared key, absence falls back to the compiler default.
func (c compiler) resolveUnknownKeys(node map[string]any, ptr string) (unknownKeys, error) {
	raw, ok := node["additionalProperties"]
	if !ok {
		return unknownKeys{mode: c.closedness}, nil
	}
	apPtr := joinPointer(ptr, "additionalProperties")
	switch ap := raw.(type) {
	case bool:
		if !ap {
			return unknownKeys{mode: Strict}, nil
		}
		return unknownKeys{mode: Passthrough}, nil
	case map[string]any:
		check, err := c.compileNode(ap, apPtr)
		if err != nil {
			return unknownKeys{}, err
		}
		return unknownKeys{mode: Passthrough, catchall: check}, nil
	}
	return unknownKeys{}, &SchemaConversionError{Message: "additionalProperties must be a boolean or a schema", Pointer: apPtr}
}

func requiredKeys(node map[string]any, ptr string) (map[string]struct{}, error) {
	raw, ok := node["required"]
	if !ok {
		return nil, nil
	}
	reqPtr := joinPointer(ptr, "required")
	var names []string
	switch r := raw.(type) {
	case []string:
		names = r
	case []any:
		names = make([]string, len(r))
		for i, v := range r {
			s, isString := v.(string)
			if !isString {
				return nil, &SchemaConversionError{Message: "required entries must be strings", Pointer: indexPointer(reqPtr, i)}
			}
			names[i] = s
		}
	default:
		return nil, &SchemaConversionError{Message: "required must be an array of strings", Pointer: reqPtr}
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out, nil
}

func objectCheck(props []property, unknown unknownKeys, ptr string) checkFunc {
	declared := make(map[string]struct{}, len(props))
	for _, p := range props {
		declared[p.key] = struct{}{}
	}
	typePtr := joinPointer(ptr, "type")
	reqPtr := joinPointer(ptr, "required")
	apPtr := joinPointer(ptr, "additionalProperties")
	return func(value any, path string) (any, []Issue) {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, []Issue{{SchemaPointer: typePtr, InstancePath: path, Message: "expected object, received " + jsonTypeName(value)}}
		}
		var issues []Issue
		out := make(map[string]any, len(obj))
		for _, p := range props {
			v, present := obj[p.key]
			if !present {
				if p.required {
					issues = append(issues, Issue{SchemaPointer: reqPtr, InstancePath: joinPointer(path, p.key), Message: "is required"})
				}
				continue
			}
			res, errs := p.check(v, joinPointer(path, p.key))
			if len(errs) > 0 {
				issues = append(issues, errs...)
				continue
			}
			out[p.key] = res
		}
		for _, k := range sortedKeys(obj) {
			if _, ok := declared[k]; ok {
				continue
			}
			switch {
			case unknown.catchall != nil:
				res, errs := unknown.catchall(obj[k], joinPointer(path, k))
				if len(errs) > 0 {
					issues = append(issues, errs...)
					continue
				}
				out[k] = res
			case unknown.mode == Strict:
				issues = append(issues, Issue{SchemaPointer: apPtr, InstancePath: joinPointer(path, k), Message: fmt.Sprintf("unrecognized key %q", k)})
			case unknown.mode == Passthrough:
				out[k] = obj[k]
			}
		}
		if len(issues) > 0 {
			return nil, issues
		}
		return out, nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
