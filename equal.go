package toolspec

// jsonEqual reports structural equality of two decoded JSON values.
// Numbers compare by value regardless of their Go representation (1, 1.0, json.Number("1")).
func jsonEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !jsonEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !jsonEqual(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}

// mergeValues combines the accepted outputs of two allOf branches. Objects merge key-wise,
// arrays of equal length merge element-wise, anything else must be equal.
func mergeValues(a, b any) (any, bool) {
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string]any, len(x)+len(y))
		for k, v := range x {
			out[k] = v
		}
		for k, yv := range y {
			xv, shared := out[k]
			if !shared {
				out[k] = yv
				continue
			}
			merged, ok := mergeValues(xv, yv)
			if !ok {
				return nil, false
			}
			out[k] = merged
		}
		return out, true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return nil, false
		}
		out := make([]any, len(x))
		for i := range x {
			merged, ok := mergeValues(x[i], y[i])
			if !ok {
				return nil, false
			}
			out[i] = merged
		}
		return out, true
	}
	if jsonEqual(a, b) {
		return a, true
	}
	return nil, false
}
