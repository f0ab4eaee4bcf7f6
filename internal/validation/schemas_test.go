package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leadSchema = `{
	"type": "object",
	"required": ["email"],
	"properties": {
		"email": {"type": "string", "format": "email"},
		"name": {"type": "string", "maxLength": 10}
	}
}`

func TestValidate(t *testing.T) {
	schema := MustCompile(leadSchema)

	result := Validate(schema, map[string]any{"email": "a@example.com", "name": "Ada"})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)

	result = Validate(schema, map[string]any{"name": "Ada"})
	require.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Error(), "email")

	result = Validate(schema, map[string]any{"email": "a@example.com", "name": "much-too-long-name"})
	assert.False(t, result.Valid)
}

func TestMustCompilePanicsOnBadSchema(t *testing.T) {
	assert.Panics(t, func() {
		MustCompile(`{"type": ["not", 1, "valid"`)
	})
}
