package registry

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a typed Go value into the map[string]any shape
// ToolSpec.InputSchema expects, for tool authors who'd rather declare a Go
// struct than hand-write a schema map. Grounded on the teacher's
// pkg/tool/functiontool/schema.go generateSchema: same reflector settings
// (inline definitions, no $schema/$id, jsonschema-tag-driven required
// fields), same JSON-marshal-then-unmarshal conversion to map[string]any.
func SchemaFor(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("registry: marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("registry: unmarshal schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}
