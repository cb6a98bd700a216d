package toolspec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MetaSchemaURL is the meta-schema schema documents are checked against.
const MetaSchemaURL = "https://json-schema.org/draft/2020-12/schema"

// metaSchema is compiled once from the meta-schemas bundled with the validation engine.
var metaSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile(MetaSchemaURL)
})

// ValidateSchema checks that document is itself a well-formed schema. All violations are
// collected into a *SchemaValidationError; unknown (vendor) keywords are allowed.
// WithPointer places the document inside an enclosing manifest for reporting.
// The document is not modified.
func ValidateSchema(document map[string]any, opts ...CompileOption) error {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}
	if document == nil {
		return &SchemaValidationError{Pointer: o.pointer, Issues: []Issue{{InstancePath: o.pointer, Message: "schema must not be nil"}}}
	}
	meta, err := metaSchema()
	if err != nil {
		return fmt.Errorf("compile meta-schema: %w", err)
	}
	instance, err := toInstance(document)
	if err != nil {
		return &SchemaValidationError{Pointer: o.pointer, Issues: []Issue{{InstancePath: o.pointer, Message: err.Error()}}}
	}
	if err := meta.Validate(instance); err != nil {
		return schemaValidationError(err, o.pointer)
	}
	return nil
}

// toInstance round-trips a Go value through JSON so the engine sees plain JSON types
// ([]any instead of []string, json.Number instead of int).
func toInstance(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("schema is not JSON-encodable: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// schemaValidationError flattens the engine's error tree into leaf issues prefixed by pointer.
func schemaValidationError(err error, pointer string) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &SchemaValidationError{Pointer: pointer, Issues: []Issue{{InstancePath: pointer, Message: err.Error()}}}
	}
	var issues []Issue
	collectLeafIssues(ve, pointer, message.NewPrinter(language.English), &issues)
	return &SchemaValidationError{Pointer: pointer, Issues: issues}
}

func collectLeafIssues(ve *jsonschema.ValidationError, pointer string, p *message.Printer, out *[]Issue) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Issue{
			SchemaPointer: ve.SchemaURL,
			InstancePath:  joinPointer(pointer, ve.InstanceLocation...),
			Message:       ve.ErrorKind.LocalizedString(p),
		})
		return
	}
	for _, cause := range ve.Causes {
		collectLeafIssues(cause, pointer, p, out)
	}
}
