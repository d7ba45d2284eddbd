package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/agentscope-ai/agentscope-go/llm"
)

// RegisterFunc registers a typed Go function as a tool. The parameter schema
// is generated from T by reflection, arguments are decoded into T before the
// call, and the return value is re-encoded as the tool result.
func RegisterFunc[T any, R any](tk *Toolkit, name, description, group string, fn func(ctx context.Context, args T) (R, error)) error {
	// reflect.TypeOf((*T)(nil)).Elem() keeps interface types intact where
	// TypeOf on a zero value would yield nil and panic downstream.
	params, err := GenerateSchema(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	wrapped := func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
		}
		res, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}

	return tk.Register(name, wrapped, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        name,
			Description: description,
			Parameters:  params,
			Group:       group,
		},
	})
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// RegisterMethods walks the exported methods of a receiver and registers
// every one with the shape
//
//	func (r *Recv) Name(ctx context.Context, args ArgsStruct) (R, error)
//
// as a tool named after the method in snake_case. Methods of any other shape
// are skipped. The group applies to all registered tools.
func RegisterMethods(tk *Toolkit, receiver any, group string) ([]string, error) {
	if receiver == nil {
		return nil, fmt.Errorf("receiver is nil")
	}
	rv := reflect.ValueOf(receiver)
	rt := rv.Type()

	var registered []string
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		mt := method.Type

		// receiver + ctx + args in, result + error out
		if mt.NumIn() != 3 || mt.NumOut() != 2 {
			continue
		}
		if mt.In(1) != ctxType || mt.Out(1) != errorType {
			continue
		}
		argType := mt.In(2)
		if derefType(argType).Kind() != reflect.Struct {
			continue
		}

		params, err := GenerateSchema(argType)
		if err != nil {
			return registered, fmt.Errorf("method %s: %w", method.Name, err)
		}

		name := snakeCase(method.Name)
		fnVal := rv.Method(i)
		wrapped := func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
			args := reflect.New(derefType(argType))
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, args.Interface()); err != nil {
					return nil, fmt.Errorf("decode arguments: %w", err)
				}
			}
			argVal := args.Elem()
			if argType.Kind() == reflect.Pointer {
				argVal = args
			}
			out := fnVal.Call([]reflect.Value{reflect.ValueOf(ctx), argVal})
			if errVal := out[1]; !errVal.IsNil() {
				return nil, errVal.Interface().(error)
			}
			return json.Marshal(out[0].Interface())
		}

		meta := ToolMetadata{Schema: llm.ToolSchema{
			Name:        name,
			Description: fmt.Sprintf("Invoke %s", method.Name),
			Parameters:  params,
			Group:       group,
		}}
		if err := tk.Register(name, wrapped, meta); err != nil {
			return registered, err
		}
		registered = append(registered, name)
	}

	if len(registered) == 0 {
		return nil, fmt.Errorf("receiver %T has no registrable methods", receiver)
	}
	return registered, nil
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
