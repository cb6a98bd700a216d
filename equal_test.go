package toolspec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"numbers across representations", 1, json.Number("1.0"), true},
		{"float and int", 2.0, int64(2), true},
		{"different numbers", 1.0, 1.5, false},
		{"number vs string", 1.0, "1", false},
		{"nulls", nil, nil, true},
		{"null vs false", nil, false, false},
		{"arrays", []any{1.0, "a"}, []any{1.0, "a"}, true},
		{"array order matters", []any{1.0, 2.0}, []any{2.0, 1.0}, false},
		{"objects ignore key order", map[string]any{"a": 1.0, "b": true}, map[string]any{"b": true, "a": 1.0}, true},
		{"object missing key", map[string]any{"a": nil}, map[string]any{"b": nil}, false},
		{"nested", map[string]any{"x": []any{map[string]any{"y": "z"}}}, map[string]any{"x": []any{map[string]any{"y": "z"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jsonEqual(tt.a, tt.b))
			assert.Equal(t, tt.want, jsonEqual(tt.b, tt.a), "symmetric")
		})
	}
}

func TestMergeValues(t *testing.T) {
	merged, ok := mergeValues(
		map[string]any{"a": 1.0, "n": map[string]any{"x": true}},
		map[string]any{"b": 2.0, "n": map[string]any{"y": false}},
	)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0, "n": map[string]any{"x": true, "y": false}}, merged)

	_, ok = mergeValues(map[string]any{"a": 1.0}, map[string]any{"a": 2.0})
	assert.False(t, ok)

	_, ok = mergeValues([]any{1.0}, []any{1.0, 2.0})
	assert.False(t, ok)

	v, ok := mergeValues("s", "s")
	assert.True(t, ok)
	assert.Equal(t, "s", v)
}
