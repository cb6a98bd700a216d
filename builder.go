package toolspec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// tool is the internal implementation of Tool built by NewTool, NewDynamicTool, or NewManifestTool.
type tool struct {
	name        string
	description string
	schema      map[string]any
	execute     func(context.Context, []byte) ([]byte, error)
	opts        toolOptions
}

// NewTool builds a Tool from a typed function. Schema and validation are delegated to Extractor[T].
// Execute runs ParseAndValidate, fn, then marshals the result.
// Returns an error if schema generation fails (e.g. unsupported type).
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	o := applyToolOptions(opts)
	ext, err := newExtractor[T](o)
	if err != nil {
		return nil, err
	}
	execute := func(ctx context.Context, argsJSON []byte) ([]byte, error) {
		args, err := ext.parse(argsJSON, o.repair)
		if err != nil {
			return nil, err
		}
		res, err := fn(ctx, args)
		if err != nil {
			return nil, wrapHandlerError(err)
		}
		b, err := json.Marshal(res)
		if err != nil {
			return nil, &SystemError{Err: err}
		}
		return b, nil
	}
	return &tool{
		name:        name,
		description: description,
		schema:      ext.Schema(),
		execute:     execute,
		opts:        o,
	}, nil
}

// NewDynamicTool creates a Tool from a raw JSON Schema map and a function that receives
// validated JSON. Useful for runtime API integration (e.g. OpenAPI/Swagger). Layer 1
// (schema) validation only; the handler receives the accepted value re-encoded as JSON,
// so stripped unknown keys never reach it. schemaMap and fn must be non-nil.
// The provided schemaMap is not mutated; a copy is made before any modifications (e.g. WithStrict).
func NewDynamicTool(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, argsJSON []byte) ([]byte, error),
	opts ...ToolOption,
) (Tool, error) {
	o := applyToolOptions(opts)
	if schemaMap == nil {
		return nil, errors.New("dynamic schema map must not be nil")
	}
	if fn == nil {
		return nil, errors.New("dynamic tool handler must not be nil")
	}
	schemaCopy, err := cloneSchema(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	if o.strict {
		applyStrictMode(schemaCopy)
	}
	stripSchemaIDs(schemaCopy)
	input, err := compileRawSchema(schemaCopy, WithAdditionalProperties(o.closedness))
	if err != nil {
		return nil, fmt.Errorf("failed to compile dynamic schema: %w", err)
	}
	return &tool{
		name:        name,
		description: description,
		schema:      schemaCopy,
		execute:     validatedExecute(input, nil, fn, o.repair),
		opts:        o,
	}, nil
}

// NewManifestTool binds a handler to a parsed Manifest. Arguments are validated against the
// input schema before fn runs; when the manifest declares an output schema, the handler's
// result is validated too and a rejected result becomes a SystemError wrapping ErrOutputValidation.
// Manifest tags, version and dangerous flag are used unless overridden by opts.
func NewManifestTool(
	m *Manifest,
	fn func(ctx context.Context, argsJSON []byte) ([]byte, error),
	opts ...ToolOption,
) (Tool, error) {
	if m == nil {
		return nil, errors.New("manifest must not be nil")
	}
	if fn == nil {
		return nil, fmt.Errorf("manifest tool %q: handler must not be nil", m.Name)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	o := toolOptions{tags: m.Tags, version: m.Version, dangerous: m.Dangerous}
	for _, opt := range opts {
		opt(&o)
	}
	compiled, err := m.Compile(WithAdditionalProperties(o.closedness))
	if err != nil {
		return nil, err
	}
	schemaCopy, err := cloneSchema(m.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	return &tool{
		name:        m.Name,
		description: m.Description,
		schema:      schemaCopy,
		execute:     validatedExecute(compiled.Input, compiled.Output, fn, o.repair),
		opts:        o,
	}, nil
}

// validatedExecute wraps a raw handler with input validation and, when output is non-nil,
// result validation.
func validatedExecute(
	input, output *Validator,
	fn func(context.Context, []byte) ([]byte, error),
	repair bool,
) func(context.Context, []byte) ([]byte, error) {
	return func(ctx context.Context, argsJSON []byte) ([]byte, error) {
		v, err := parseArgs(argsJSON, repair)
		if err != nil {
			return nil, err
		}
		accepted, err := validateAgainstSchema(input, v)
		if err != nil {
			return nil, err
		}
		validJSON, err := json.Marshal(accepted)
		if err != nil {
			return nil, &SystemError{Err: err}
		}
		res, err := fn(ctx, validJSON)
		if err != nil {
			return nil, wrapHandlerError(err)
		}
		if output == nil {
			return res, nil
		}
		out, err := output.ValidateJSON(res)
		if err != nil {
			return nil, &SystemError{Err: fmt.Errorf("%w: %w", ErrOutputValidation, err)}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, &SystemError{Err: err}
		}
		return b, nil
	}
}

func applyToolOptions(opts []ToolOption) toolOptions {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (t *tool) Name() string        { return t.name }
func (t *tool) Description() string { return t.description }

// Parameters returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps (e.g. under "properties") are shared; callers must not mutate them.
func (t *tool) Parameters() map[string]any { return maps.Clone(t.schema) }

func (t *tool) Execute(ctx context.Context, argsJSON []byte) ([]byte, error) {
	return t.execute(ctx, argsJSON)
}

func (t *tool) Timeout() time.Duration { return t.opts.timeout }
func (t *tool) Tags() []string         { return append([]string(nil), t.opts.tags...) }
func (t *tool) Version() string        { return t.opts.version }
func (t *tool) IsDangerous() bool      { return t.opts.dangerous }

// wrapHandlerError passes through ClientError; wraps other errors as SystemError.
func wrapHandlerError(err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) {
		return err
	}
	return &SystemError{Err: err}
}

var (
	_ Tool         = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
)
