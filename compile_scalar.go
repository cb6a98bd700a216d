package toolspec

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"
)

// constraint inspects an already type-checked value and returns an issue message, or "".
type constraint[T any] struct {
	pointer string
	check   func(T) string
}

func compileString(node map[string]any, ptr string) (checkFunc, error) {
	var constraints []constraint[string]

	if n, ok, err := nonNegativeInt(node, "minLength", ptr); err != nil {
		return nil, err
	} else if ok {
		constraints = append(constraints, constraint[string]{joinPointer(ptr, "minLength"), func(s string) string {
			if utf8.RuneCountInString(s) < n {
				return fmt.Sprintf("must be at least %d characters long", n)
			}
			return ""
		}})
	}
	if n, ok, err := nonNegativeInt(node, "maxLength", ptr); err != nil {
		return nil, err
	} else if ok {
		constraints = append(constraints, constraint[string]{joinPointer(ptr, "maxLength"), func(s string) string {
			if utf8.RuneCountInString(s) > n {
				return fmt.Sprintf("must be at most %d characters long", n)
			}
			return ""
		}})
	}
	if raw, ok := node["pattern"]; ok {
		patternPtr := joinPointer(ptr, "pattern")
		src, isString := raw.(string)
		if !isString {
			return nil, &SchemaConversionError{Message: "pattern must be a string", Pointer: patternPtr}
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, &SchemaConversionError{Message: "invalid pattern: " + err.Error(), Pointer: patternPtr}
		}
		constraints = append(constraints, constraint[string]{patternPtr, func(s string) string {
			if !re.MatchString(s) {
				return "must match pattern " + strconv.Quote(src)
			}
			return ""
		}})
	}
	if format, _ := node["format"].(string); format == "date-time" {
		constraints = append(constraints, constraint[string]{joinPointer(ptr, "format"), func(s string) string {
			if !isDateTime(s) {
				return "must be an ISO 8601 date-time"
			}
			return ""
		}})
	}

	typePtr := joinPointer(ptr, "type")
	return func(value any, path string) (any, []Issue) {
		s, ok := value.(string)
		if !ok {
			return nil, []Issue{{SchemaPointer: typePtr, InstancePath: path, Message: "expected string, received " + jsonTypeName(value)}}
		}
		if issues := runConstraints(constraints, s, path); len(issues) > 0 {
			return nil, issues
		}
		return value, nil
	}, nil
}

// isDateTime accepts RFC 3339 date-times, the internet profile of ISO 8601.
func isDateTime(s string) bool {
	_, err := time.Parse(time.RFC3339Nano, s)
	return err == nil
}

func compileNumber(node map[string]any, ptr string, integer bool) (checkFunc, error) {
	var constraints []constraint[float64]

	bounds := []struct {
		keyword string
		fails   func(v, bound float64) bool
		message string
	}{
		{"minimum", func(v, b float64) bool { return v < b }, "must be greater than or equal to %v"},
		{"exclusiveMinimum", func(v, b float64) bool { return v <= b }, "must be greater than %v"},
		{"maximum", func(v, b float64) bool { return v > b }, "must be less than or equal to %v"},
		{"exclusiveMaximum", func(v, b float64) bool { return v >= b }, "must be less than %v"},
	}
	for _, bound := range bounds {
		limit, ok, err := numberKeyword(node, bound.keyword, ptr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		constraints = append(constraints, constraint[float64]{joinPointer(ptr, bound.keyword), func(v float64) string {
			if bound.fails(v, limit) {
				return fmt.Sprintf(bound.message, limit)
			}
			return ""
		}})
	}

	want := "number"
	if integer {
		want = "integer"
	}
	typePtr := joinPointer(ptr, "type")
	return func(value any, path string) (any, []Issue) {
		f, ok := numericValue(value)
		if !ok {
			return nil, []Issue{{SchemaPointer: typePtr, InstancePath: path, Message: "expected " + want + ", received " + jsonTypeName(value)}}
		}
		if integer && math.Trunc(f) != f {
			return nil, []Issue{{SchemaPointer: typePtr, InstancePath: path, Message: "expected integer, received non-integer number"}}
		}
		if issues := runConstraints(constraints, f, path); len(issues) > 0 {
			return nil, issues
		}
		return value, nil
	}, nil
}

// numericValue accepts finite numbers only; booleans are not numbers.
func numericValue(v any) (float64, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func runConstraints[T any](constraints []constraint[T], v T, path string) []Issue {
	var issues []Issue
	for _, c := range constraints {
		if msg := c.check(v); msg != "" {
			issues = append(issues, Issue{SchemaPointer: c.pointer, InstancePath: path, Message: msg})
		}
	}
	return issues
}
