package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetArgs struct {
	Name  string `json:"name" jsonschema:"required"`
	Count int    `json:"count"`
}

func TestSchemaForReflectsStruct(t *testing.T) {
	schema, err := SchemaFor(widgetArgs{})
	require.NoError(t, err)

	_, hasSchemaKey := schema["$schema"]
	assert.False(t, hasSchemaKey, "expected $schema to be stripped")

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "expected properties map, got %T", schema["properties"])
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "count")
}

func TestSleepToolHasReflectedSchema(t *testing.T) {
	r := New()
	r.Discover(context.Background())

	spec, err := r.Get("sleep")
	require.NoError(t, err)
	require.NotNil(t, spec.InputSchema, "expected sleep tool to carry a reflected InputSchema")
	assert.Contains(t, spec.InputSchema, "properties")
}
