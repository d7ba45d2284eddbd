package types

import (
	"encoding/json"
	"fmt"
)

// SchemaType enumerates JSON Schema type keywords.
type SchemaType string

const (
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeNull    SchemaType = "null"
)

// JSONSchema is the subset of JSON Schema used for tool parameter
// declarations. It round-trips through encoding/json, so schemas built here
// can be sent to any provider unchanged.
type JSONSchema struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Type        SchemaType `json:"type,omitempty"`

	// Object keywords
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`

	// Array keywords
	Items    *JSONSchema `json:"items,omitempty"`
	MinItems *int        `json:"minItems,omitempty"`
	MaxItems *int        `json:"maxItems,omitempty"`

	Enum []any `json:"enum,omitempty"`

	// String keywords
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Format    string `json:"format,omitempty"`

	// Numeric keywords
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	Default any `json:"default,omitempty"`
}

// NewObjectSchema creates an empty object schema.
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       SchemaTypeObject,
		Properties: make(map[string]*JSONSchema),
	}
}

// NewArraySchema creates an array schema with the given item schema.
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeArray, Items: items}
}

// WithProperty adds a property and returns the schema for chaining.
func (s *JSONSchema) WithProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// WithRequired marks properties as required and returns the schema.
func (s *JSONSchema) WithRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

// MarshalParameters serializes the schema into the raw form carried by
// ToolSchema.Parameters.
func (s *JSONSchema) MarshalParameters() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal json schema: %w", err)
	}
	return data, nil
}

// Validate performs a structural sanity check: object schemas must not list
// required properties that are absent from Properties.
func (s *JSONSchema) Validate() error {
	if s.Type == SchemaTypeObject {
		for _, req := range s.Required {
			if _, ok := s.Properties[req]; !ok {
				return fmt.Errorf("required property %q not declared", req)
			}
		}
		for name, prop := range s.Properties {
			if err := prop.Validate(); err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
		}
	}
	if s.Type == SchemaTypeArray && s.Items != nil {
		if err := s.Items.Validate(); err != nil {
			return fmt.Errorf("items: %w", err)
		}
	}
	return nil
}
