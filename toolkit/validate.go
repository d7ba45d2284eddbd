package toolkit

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// argValidator validates model-supplied tool arguments against the tool's
// parameter schema. Compilation happens once at registration time.
type argValidator struct {
	compiled *jsonschema.Schema
}

// compileValidator compiles a JSON Schema document. A nil or empty schema
// yields a nil validator, which accepts everything.
func compileValidator(params json.RawMessage) (*argValidator, error) {
	if len(params) == 0 {
		return nil, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(params))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &argValidator{compiled: compiled}, nil
}

// Validate checks the arguments document against the schema. Empty arguments
// are validated as an empty object, matching what models send for tools
// without parameters.
func (v *argValidator) Validate(args json.RawMessage) error {
	if v == nil || v.compiled == nil {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("argument validation failed: %w", err)
	}
	return nil
}
