// Package toolspec checks, compiles and consumes the JSON Schema documents that describe
// the inputs and outputs of AI-callable tools.
//
// # Overview
//
// A tool manifest carries a name, a description and an input schema (optionally an output
// schema). Before a schema is used it is checked against the draft 2020-12 meta-schema
// (ValidateSchema). A well-formed schema is then compiled once into a Validator, which
// checks values in a single pass and returns every independent Issue it finds, each located
// by a JSON pointer into the schema and a path into the value.
//
// Pipeline: manifest JSON → ParseManifest (envelope + meta-schema) → Manifest.Compile →
// Validator → NewManifestTool → Registry → Execute (validate, call, validate result) → ToolResult.
//
// # Key concepts
//
//   - Closedness: what happens to object keys the schema does not declare. Strip (default)
//     drops them from the accepted value, Passthrough keeps them, Strict rejects them.
//     An explicit additionalProperties in the schema always wins.
//   - Accepted value: Validator.Validate returns a new value with stripped keys removed;
//     the input is never modified.
//   - Normalize and GenerateTypeText turn a schema into Go type declarations for code that
//     consumes tool arguments statically.
//   - ClientError carries human-readable messages back to the LLM for self-correction;
//     SystemError hides internal failures (including rejected tool output).
//
// # Example
//
//	m, err := toolspec.ParseManifest(data)
//	if err != nil { ... }
//	reg := toolspec.NewRegistry()
//	err = reg.RegisterManifest(m, func(ctx context.Context, args []byte) ([]byte, error) {
//	    return []byte(`{"temp":22.5}`), nil
//	})
//	result := reg.Execute(ctx, toolspec.ToolCall{ID: "1", ToolName: m.Name, Args: []byte(`{"city":"Moscow"}`)})
package toolspec
