package gateway

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fascinante-digital/gateway/internal/validation"
)

// Action is one named operation behind the business endpoint. Adding an
// operation means registering a new Action, not growing a dispatch switch.
type Action interface {
	Name() string
	Validate(params map[string]any) error
	Execute(ctx context.Context, params map[string]any) (any, float64, error)
	CacheTTL() time.Duration
}

// Registry maps action names to their implementations.
type Registry struct {
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

func (r *Registry) Register(action Action) error {
	if _, exists := r.actions[action.Name()]; exists {
		return fmt.Errorf("action %q is already registered", action.Name())
	}
	r.actions[action.Name()] = action
	return nil
}

func (r *Registry) Get(name string) (Action, bool) {
	action, ok := r.actions[name]
	return action, ok
}

// Names lists registered actions in sorted order, used in error bodies
// for unknown actions.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaAction implements Action with a JSON Schema for parameter
// validation and a closure for the upstream call.
type SchemaAction struct {
	name    string
	schema  *gojsonschema.Schema
	ttl     time.Duration
	execute func(ctx context.Context, params map[string]any) (any, float64, error)
}

func NewSchemaAction(name, schemaJSON string, ttl time.Duration, execute func(ctx context.Context, params map[string]any) (any, float64, error)) *SchemaAction {
	return &SchemaAction{
		name:    name,
		schema:  validation.MustCompile(schemaJSON),
		ttl:     ttl,
		execute: execute,
	}
}

func (a *SchemaAction) Name() string { return a.name }

func (a *SchemaAction) CacheTTL() time.Duration { return a.ttl }

func (a *SchemaAction) Validate(params map[string]any) error {
	if result := validation.Validate(a.schema, params); !result.Valid {
		return result
	}
	return nil
}

func (a *SchemaAction) Execute(ctx context.Context, params map[string]any) (any, float64, error) {
	return a.execute(ctx, params)
}
