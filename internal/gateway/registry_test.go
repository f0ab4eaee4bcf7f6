package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinante-digital/gateway/internal/validation"
)

const testActionSchema = `{
	"type": "object",
	"required": ["keyword"],
	"properties": {
		"keyword": {"type": "string", "minLength": 1},
		"depth": {"type": "integer", "minimum": 1, "maximum": 100}
	},
	"additionalProperties": false
}`

func newTestAction(name string) *SchemaAction {
	return NewSchemaAction(name, testActionSchema, time.Minute,
		func(ctx context.Context, params map[string]any) (any, float64, error) {
			return params["keyword"], 0.1, nil
		})
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(newTestAction("reviews")))
	require.NoError(t, registry.Register(newTestAction("business_info")))

	// Duplicate names are a wiring bug, caught at startup.
	assert.Error(t, registry.Register(newTestAction("reviews")))

	assert.Equal(t, []string{"business_info", "reviews"}, registry.Names())

	action, ok := registry.Get("reviews")
	require.True(t, ok)
	assert.Equal(t, "reviews", action.Name())
	assert.Equal(t, time.Minute, action.CacheTTL())

	_, ok = registry.Get("unknown")
	assert.False(t, ok)
}

func TestSchemaAction_Validate(t *testing.T) {
	action := newTestAction("reviews")

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{
			name:   "valid params",
			params: map[string]any{"keyword": "coffee shop", "depth": 20},
		},
		{
			name:    "missing required keyword",
			params:  map[string]any{"depth": 20},
			wantErr: true,
		},
		{
			name:    "empty keyword",
			params:  map[string]any{"keyword": ""},
			wantErr: true,
		},
		{
			name:    "depth out of range",
			params:  map[string]any{"keyword": "coffee", "depth": 1000},
			wantErr: true,
		},
		{
			name:    "unexpected field",
			params:  map[string]any{"keyword": "coffee", "admin": true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := action.Validate(tt.params)
			if tt.wantErr {
				require.Error(t, err)
				result, ok := err.(validation.Result)
				require.True(t, ok)
				assert.NotEmpty(t, result.Errors)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSchemaAction_Execute(t *testing.T) {
	action := newTestAction("reviews")

	payload, cost, err := action.Execute(context.Background(), map[string]any{"keyword": "coffee"})
	require.NoError(t, err)
	assert.Equal(t, "coffee", payload)
	assert.InDelta(t, 0.1, cost, 1e-9)
}
