package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaFor reflects the JSON schema of v, inlined and without $schema/$id,
// so it can be embedded in a prompt and compiled by gojsonschema.
func SchemaFor(v any) ([]byte, error) {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	return json.MarshalIndent(s, "", "  ")
}

// Validator checks a completed document against a reflected schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the schema of v.
func NewValidator(v any) (*Validator, error) {
	raw, err := SchemaFor(v)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect schema: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate returns one message per schema violation in doc.
func (v *Validator) Validate(doc string) ([]string, error) {
	result, err := v.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return problems, nil
}

// Payload cuts the JSON object out of a model response, dropping a markdown
// fence or any prose around it.
func Payload(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}
