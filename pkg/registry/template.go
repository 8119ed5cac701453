package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// templateDefinition is one named entry of TEMPLATES_PATH: a step list with
// ${var} placeholders resolved against the tool-call's own args, per
// spec.md §4.1 discovery source 6.
type templateDefinition struct {
	Description string           `json:"description"`
	Steps       []map[string]any `json:"steps"`
}

func loadTemplates(path string) (map[string]templateDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var defs map[string]templateDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// discoverTemplates registers one ToolSpec per template. Calling it runs no
// steps itself — it returns the expanded {"steps": [...]} list for the
// executor to schedule, per spec.md §4.1.
func (r *Registry) discoverTemplates(path string, defs map[string]templateDefinition) {
	for name, def := range defs {
		def := def
		_ = r.Register(&ToolSpec{
			Name:        name,
			Description: def.Description,
			CompositeOf: templateStepNames(def.Steps),
			Source:      "template:" + path,
			Run: func(_ context.Context, args map[string]any) (map[string]any, error) {
				steps := make([]map[string]any, len(def.Steps))
				for i, step := range def.Steps {
					steps[i] = substituteTemplateVars(step, args).(map[string]any)
				}
				return map[string]any{"steps": steps}, nil
			},
		})
	}
}

func templateStepNames(steps []map[string]any) []string {
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		if name, ok := s["tool"].(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// substituteTemplateVars walks a decoded JSON value, replacing every
// "${key}" string (whole-string match) with args[key] verbatim (any type),
// and every "...${key}..." substring occurrence with its string form.
func substituteTemplateVars(v any, args map[string]any) any {
	switch val := v.(type) {
	case string:
		return substituteString(val, args)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = substituteTemplateVars(inner, args)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = substituteTemplateVars(inner, args)
		}
		return out
	default:
		return v
	}
}

func substituteString(s string, args map[string]any) any {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") && strings.Count(s, "${") == 1 {
		key := s[2 : len(s)-1]
		if v, ok := args[key]; ok {
			return v
		}
		return s
	}

	var sb strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			sb.WriteString(s[i:])
			break
		}
		start += i
		end := strings.Index(s[start:], "}")
		if end < 0 {
			sb.WriteString(s[i:])
			break
		}
		end += start
		sb.WriteString(s[i:start])
		key := s[start+2 : end]
		if v, ok := args[key]; ok {
			sb.WriteString(fmt.Sprintf("%v", v))
		} else {
			sb.WriteString(s[start : end+1])
		}
		i = end + 1
	}
	return sb.String()
}
