package toolkit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// MergeToolSchemas combines per-tool parameter schemas into one object schema
// keyed by tool name. Tools with no parameters contribute an empty object
// schema. Every tool name ends up required so a document validating against
// the merge carries arguments for the whole group.
func MergeToolSchemas(named map[string]json.RawMessage) (json.RawMessage, error) {
	props := make(map[string]json.RawMessage, len(named))
	required := make([]string, 0, len(named))
	for name, params := range named {
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object"}`)
		}
		if !json.Valid(params) {
			return nil, fmt.Errorf("tool %s: parameter schema is not valid JSON", name)
		}
		props[name] = params
		required = append(required, name)
	}
	sort.Strings(required)

	merged := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	return json.Marshal(merged)
}

// GenerateSchema builds a JSON Schema object for a struct type, driven by
// json and description tags. It backs the reflection invoker: the argument
// struct of a registered function becomes the tool's parameter schema.
func GenerateSchema(t reflect.Type) (json.RawMessage, error) {
	if t == nil {
		return nil, fmt.Errorf("schema generation needs a struct type, got nil")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema generation needs a struct type, got %s", t.Kind())
	}
	schema, err := typeSchema(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(schema)
}

func typeSchema(t reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	// time.Time marshals to an RFC 3339 string.
	if t == reflect.TypeOf(time.Time{}) {
		return map[string]any{"type": "string", "format": "date-time"}, nil
	}
	if t == reflect.TypeOf(json.RawMessage(nil)) {
		return map[string]any{}, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Slice, reflect.Array:
		items, err := typeSchema(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key must be string, got %s", t.Key().Kind())
		}
		vals, err := typeSchema(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "object", "additionalProperties": vals}, nil
	case reflect.Struct:
		if seen[t] {
			return nil, fmt.Errorf("recursive type %s is not supported", t)
		}
		seen[t] = true
		defer delete(seen, t)
		return structSchema(t, seen)
	case reflect.Interface:
		return map[string]any{}, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t.Kind())
	}
}

func structSchema(t reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	props := make(map[string]any)
	var required []string

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			embedded, err := structSchema(f.Type, seen)
			if err != nil {
				return nil, err
			}
			if ep, ok := embedded["properties"].(map[string]any); ok {
				for k, v := range ep {
					props[k] = v
				}
			}
			if er, ok := embedded["required"].([]string); ok {
				required = append(required, er...)
			}
			continue
		}

		name, omitempty := jsonName(f)
		if name == "-" {
			continue
		}

		fs, err := typeSchema(f.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name(), f.Name, err)
		}
		if desc := f.Tag.Get("description"); desc != "" {
			fs["description"] = desc
		}
		if enum := f.Tag.Get("enum"); enum != "" {
			vals := strings.Split(enum, ",")
			anyVals := make([]any, len(vals))
			for i, v := range vals {
				anyVals[i] = strings.TrimSpace(v)
			}
			fs["enum"] = anyVals
		}
		props[name] = fs

		// Optional fields opt out with omitempty or a pointer type.
		if !omitempty && f.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out, nil
}

func jsonName(f reflect.StructField) (name string, omitempty bool) {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty
}
