package toolspec

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for toolspec. Use errors.Is to check.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrTimeout          = errors.New("tool execution timeout")
	ErrValidation       = errors.New("validation failed")
	ErrOutputValidation = errors.New("tool output failed validation")
	ErrShutdown         = errors.New("registry is shutting down")
)

// ClientError is an error that should be sent back to the LLM for self-correction
// (e.g. invalid JSON, schema validation failure, bad enum value).
// Do not expose stack traces or internal details to the LLM.
// Err optionally wraps a sentinel or a *ValidationError for errors.Is/errors.As.
type ClientError struct {
	Reason string
	// Retryable is set by the application (not by toolspec). When true, the orchestrator
	// may retry the same call without changing arguments (e.g. transient rate limit).
	Retryable bool
	Err       error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

// Unwrap supports errors.Is/errors.As on wrapped chains (e.g. errors.Is(err, ErrValidation)).
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (DB down, panic, invalid tool output, etc.).
// The LLM should not see the underlying error message or stack.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// SchemaValidationError reports a schema document that is not itself a well-formed schema.
// Pointer locates the document inside its manifest ("" for a standalone document); every
// issue is collected, not only the first.
type SchemaValidationError struct {
	Pointer string
	Issues  []Issue
}

func (e *SchemaValidationError) Error() string {
	where := e.Pointer
	if where == "" {
		where = "/"
	}
	return fmt.Sprintf("malformed schema at %s: %s", where, joinIssues(e.Issues))
}

// SchemaConversionError reports a construct the compiler does not support ($ref, unknown type,
// array without items, ...). Compilation stops at the first one.
type SchemaConversionError struct {
	Message string
	Pointer string
}

func (e *SchemaConversionError) Error() string {
	where := e.Pointer
	if where == "" {
		where = "/"
	}
	return fmt.Sprintf("unsupported schema at %s: %s", where, e.Message)
}

// ValidationError is returned by a compiled Validator when a value is rejected.
// It carries every independent issue found in one pass.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	return joinIssues(e.Issues)
}

// Unwrap makes errors.Is(err, ErrValidation) hold for rejected values.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// IsSchemaError returns true if err reports a broken schema document rather than a bad value:
// either a *SchemaValidationError or a *SchemaConversionError.
func IsSchemaError(err error) bool {
	var sve *SchemaValidationError
	var sce *SchemaConversionError
	return errors.As(err, &sve) || errors.As(err, &sce)
}

// wrapJSONParseError returns a ClientError for JSON unmarshal failures.
// Used by Extractor.ParseAndValidate and the dynamic/manifest execute paths so parse errors are consistent.
func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error()}
}

func joinIssues(issues []Issue) string {
	if len(issues) == 0 {
		return "no issues"
	}
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.String()
	}
	return strings.Join(parts, "; ")
}
