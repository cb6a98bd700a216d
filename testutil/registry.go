package testutil

import (
	"context"
	"time"

	"github.com/skosovsky/toolspec"
)

// NewTestRegistry returns a Registry with long timeout and panic recovery enabled,
// suitable for tests.
func NewTestRegistry(tools ...toolspec.Tool) *toolspec.Registry {
	reg := toolspec.NewRegistry(
		toolspec.WithDefaultTimeout(30*time.Second),
		toolspec.WithRecoverPanics(true),
	)
	for _, t := range tools {
		reg.Register(t)
	}
	return reg
}

// EchoHandler returns its arguments unchanged; handy for manifest tools whose output schema
// equals the input schema.
func EchoHandler(_ context.Context, args []byte) ([]byte, error) {
	return args, nil
}

// WeatherManifest returns a small, valid manifest used across tests.
func WeatherManifest() *toolspec.Manifest {
	return &toolspec.Manifest{
		Name:        "get_weather",
		Description: "Get the current weather for a city",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string", "minLength": 1},
				"unit": map[string]any{"enum": []any{"celsius", "fahrenheit"}},
			},
			"required": []any{"city"},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"temp": map[string]any{"type": "number"},
			},
			"required": []any{"temp"},
		},
		Tags:    []string{"weather"},
		Version: "1.0.0",
	}
}
