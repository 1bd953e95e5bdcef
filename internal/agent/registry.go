// internal/agent/registry.go
package agent

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
)

// ParamType is the declared type of an action parameter.
type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
	ParamBool   ParamType = "bool"
)

func (p ParamType) kind() schemas.ValueKind {
	switch p {
	case ParamInt:
		return schemas.KindInt
	case ParamFloat:
		return schemas.KindFloat
	case ParamString:
		return schemas.KindString
	case ParamBool:
		return schemas.KindBool
	}
	return schemas.KindNone
}

// ParamSpec declares one parameter of an action.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// ActionInfo is the model-facing description of an action.
type ActionInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
}

// Args are the validated arguments of a dispatched command. Every declared
// parameter is present; omitted optional ones hold the None value.
type Args map[string]schemas.Value

// Int returns an int argument and false when it is None.
func (a Args) Int(name string) (int, bool) {
	v := a[name]
	return int(v.Int()), v.Kind() == schemas.KindInt
}

// Float returns a float argument and false when it is None.
func (a Args) Float(name string) (float64, bool) {
	v := a[name]
	return v.Float(), v.Kind() == schemas.KindFloat
}

// String returns a string argument and false when it is None.
func (a Args) String(name string) (string, bool) {
	v := a[name]
	return v.StringVal(), v.Kind() == schemas.KindString
}

// Bool returns a bool argument and false when it is None.
func (a Args) Bool(name string) (bool, bool) {
	v := a[name]
	return v.Bool(), v.Kind() == schemas.KindBool
}

// Handler executes an action against a target, usually the environment
// itself. A returned error is fatal to the run unless Guard converts it.
type Handler[T any] func(ctx context.Context, target T, args Args) (ActionResult, error)

// ActionSpec binds a name and parameter list to a handler.
type ActionSpec[T any] struct {
	Name        string
	Description string
	Params      []ParamSpec
	Handler     Handler[T]
}

// Registry holds the actions of one environment. It is built once and is
// read-only afterwards.
type Registry[T any] struct {
	specs map[string]ActionSpec[T]
	order []string
}

// NewRegistry validates and registers specs in the given order.
func NewRegistry[T any](specs ...ActionSpec[T]) (*Registry[T], error) {
	r := &Registry[T]{specs: make(map[string]ActionSpec[T], len(specs))}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("action has an empty name")
		}
		if s.Handler == nil {
			return nil, fmt.Errorf("action %q has no handler", s.Name)
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("action %q registered twice", s.Name)
		}
		seen := make(map[string]bool, len(s.Params))
		for _, p := range s.Params {
			if p.Type.kind() == schemas.KindNone {
				return nil, fmt.Errorf("action %q: parameter %q has unknown type %q", s.Name, p.Name, p.Type)
			}
			if seen[p.Name] {
				return nil, fmt.Errorf("action %q: parameter %q declared twice", s.Name, p.Name)
			}
			seen[p.Name] = true
		}
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// Catalog describes the registered actions in registration order.
func (r *Registry[T]) Catalog() []ActionInfo {
	out := make([]ActionInfo, 0, len(r.order))
	for _, name := range r.order {
		s := r.specs[name]
		params := make([]ParamSpec, len(s.Params))
		copy(params, s.Params)
		out = append(out, ActionInfo{Name: s.Name, Description: s.Description, Params: params})
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Dispatch validates cmd against the registered spec and invokes the
// handler. Unknown parameters are dropped, then required parameters are
// checked, then types. Validation failures come back as DISPATCH_ERROR
// results; only the handler can return an error.
func (r *Registry[T]) Dispatch(ctx context.Context, target T, cmd Command) (ActionResult, error) {
	spec, ok := r.specs[cmd.Name]
	if !ok {
		return Failed(ErrCodeDispatch, fmt.Sprintf("Unsupported command %q.", cmd.Name)), nil
	}

	args := make(Args, len(spec.Params))
	for _, p := range spec.Params {
		if v, ok := cmd.Parameters[p.Name]; ok && !v.IsNone() {
			args[p.Name] = v
		}
	}

	for _, p := range spec.Params {
		if _, ok := args[p.Name]; p.Required && !ok {
			return Failed(ErrCodeDispatch,
				fmt.Sprintf("Missing required argument %q for command %q.", p.Name, cmd.Name)), nil
		}
	}

	for _, p := range spec.Params {
		v, ok := args[p.Name]
		if !ok {
			args[p.Name] = schemas.NoValue()
			continue
		}
		if v.Kind() != p.Type.kind() {
			return Failed(ErrCodeDispatch,
				fmt.Sprintf("Argument %q of command %q has wrong type: expected %s, got %s.",
					p.Name, cmd.Name, p.Type, v.Kind())), nil
		}
	}

	return spec.Handler(ctx, target, args)
}
