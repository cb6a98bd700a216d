package toolspec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/kaptinlin/jsonrepair"
)

// Validatable is implemented by argument structs that need custom business validation.
// Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// schemaValidator validates a JSON-like value (e.g. map[string]any from json.Unmarshal).
// Used by Extractor, dynamic and manifest tools. *Validator implements it.
type schemaValidator interface {
	Validate(v any) (any, error)
}

// validateAgainstSchema runs Layer 1 validation on already-parsed value v and returns the accepted value.
// Rejections become a ClientError wrapping the *ValidationError, so callers can still reach the issues.
func validateAgainstSchema(validate schemaValidator, v any) (any, error) {
	out, err := validate.Validate(v)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, &ClientError{Reason: ve.Error(), Err: ve}
		}
		return nil, &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return out, nil
}

// validateCustom runs Layer 2 (Validatable) if args implements it.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// parseArgs decodes tool-call arguments with numbers kept as json.Number, so integers
// beyond 2^53 reach the handler unchanged. With repair enabled, JSON that fails to decode
// is passed through jsonrepair once before giving up.
func parseArgs(argsJSON []byte, repair bool) (any, error) {
	v, err := decodeArgs(argsJSON)
	if err == nil {
		return v, nil
	}
	if !repair {
		return nil, wrapJSONParseError(err)
	}
	repaired, repairErr := jsonrepair.JSONRepair(string(argsJSON))
	if repairErr != nil {
		return nil, wrapJSONParseError(err)
	}
	v, err = decodeArgs([]byte(repaired))
	if err != nil {
		return nil, wrapJSONParseError(err)
	}
	return v, nil
}

func decodeArgs(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid character after top-level value")
	}
	return v, nil
}
