package toolspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Manifest is the data-only description of an AI-callable tool.
type Manifest struct {
	Name         string         `json:"name" jsonschema:"minLength=1,maxLength=64,pattern=^[A-Za-z0-9_.-]+$,description=Tool name as shown to the model"`
	Description  string         `json:"description" jsonschema:"minLength=1,description=What the tool does"`
	InputSchema  map[string]any `json:"inputSchema" jsonschema:"description=Schema of the tool arguments"`
	OutputSchema map[string]any `json:"outputSchema,omitempty" jsonschema:"description=Schema of the tool result"`
	Tags         []string       `json:"tags,omitempty"`
	Version      string         `json:"version,omitempty"`
	Dangerous    bool           `json:"dangerous,omitempty"`
}

// CompiledManifest holds the validators compiled from a Manifest.
type CompiledManifest struct {
	Manifest *Manifest
	Input    *Validator
	// Output is nil when the manifest declares no output schema.
	Output *Validator
}

// ManifestOption configures ParseManifest.
type ManifestOption func(*manifestOptions)

type manifestOptions struct {
	htmlDescriptions bool
}

// WithHTMLDescriptions converts HTML manifest descriptions to markdown, which models read better.
func WithHTMLDescriptions() ManifestOption {
	return func(o *manifestOptions) {
		o.htmlDescriptions = true
	}
}

// ManifestSchema returns the JSON Schema of the manifest envelope, reflected from Manifest.
func ManifestSchema() map[string]any {
	r := &invopop.Reflector{DoNotReference: true, ExpandedStruct: true, Anonymous: true}
	data, err := json.Marshal(r.Reflect(&Manifest{}))
	if err != nil {
		panic("toolspec: manifest schema is not JSON-encodable: " + err.Error())
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic("toolspec: manifest schema is not JSON-decodable: " + err.Error())
	}
	return out
}

var manifestEnvelope = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := toInstance(ManifestSchema())
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("manifest.schema.json")
})

// ParseManifest decodes a manifest, checks its envelope (name, description, field types) and
// checks both schemas against the meta-schema. Problems are reported as *SchemaValidationError
// with pointers into the manifest document. Compilation is left to Manifest.Compile.
func ParseManifest(data []byte, opts ...ManifestOption) (*Manifest, error) {
	var o manifestOptions
	for _, opt := range opts {
		opt(&o)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	envelope, err := manifestEnvelope()
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	if err := envelope.Validate(doc); err != nil {
		return nil, schemaValidationError(err, "")
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if o.htmlDescriptions {
		desc, err := descriptionToMarkdown(m.Description)
		if err != nil {
			return nil, fmt.Errorf("convert description of %q: %w", m.Name, err)
		}
		m.Description = desc
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

var htmlTag = regexp.MustCompile(`<[a-zA-Z][^>]*>`)

func descriptionToMarkdown(desc string) (string, error) {
	if !htmlTag.MatchString(desc) {
		return desc, nil
	}
	md, err := htmltomarkdown.ConvertString(desc)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

// Validate checks that the manifest has a name and that its schemas are well-formed.
// Issues from both schemas are collected into one *SchemaValidationError.
func (m *Manifest) Validate() error {
	var issues []Issue
	if m.Name == "" {
		issues = append(issues, Issue{InstancePath: "/name", Message: "name must not be empty"})
	}
	if m.InputSchema == nil {
		issues = append(issues, Issue{InstancePath: "/inputSchema", Message: "inputSchema is required"})
	} else {
		issues = append(issues, schemaIssues(ValidateSchema(m.InputSchema, WithPointer("/inputSchema")))...)
	}
	if m.OutputSchema != nil {
		issues = append(issues, schemaIssues(ValidateSchema(m.OutputSchema, WithPointer("/outputSchema")))...)
	}
	if len(issues) > 0 {
		return &SchemaValidationError{Issues: issues}
	}
	return nil
}

func schemaIssues(err error) []Issue {
	if err == nil {
		return nil
	}
	if sve, ok := err.(*SchemaValidationError); ok {
		return sve.Issues
	}
	return []Issue{{Message: err.Error()}}
}

// Compile compiles the input schema (at /inputSchema) and, when present, the output schema
// (at /outputSchema). It does not re-run meta-schema validation.
func (m *Manifest) Compile(opts ...CompileOption) (*CompiledManifest, error) {
	input, err := Compile(m.InputSchema, slices.Concat(opts, []CompileOption{WithPointer("/inputSchema")})...)
	if err != nil {
		return nil, fmt.Errorf("compile input schema of %q: %w", m.Name, err)
	}
	cm := &CompiledManifest{Manifest: m, Input: input}
	if m.OutputSchema != nil {
		cm.Output, err = Compile(m.OutputSchema, slices.Concat(opts, []CompileOption{WithPointer("/outputSchema")})...)
		if err != nil {
			return nil, fmt.Errorf("compile output schema of %q: %w", m.Name, err)
		}
	}
	return cm, nil
}
