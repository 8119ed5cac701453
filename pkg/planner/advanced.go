package planner

import (
	"strconv"
	"strings"

	"github.com/wjabrac/agentrun/pkg/config"
)

// RawNode is one entry of a raw, unexpanded plan: either a Step (has
// "tool") or a control-flow node ("if"/"while"/"loop" with nested "steps").
// Using map[string]any mirrors the shape a planner or HTTP caller submits
// before expansion, since control-flow nodes aren't valid Steps themselves.
type RawNode = map[string]any

// ExpandPlan expands "if/then/else", "while{cond,max}" and
// "loop{times|range}" control-flow nodes into a flat step list, gated on
// ADVANCED_PLANNING (default off). Grounded on
// original_source/core/planning/advanced.py's expand_plan/_expand, same
// truthiness rules and the same silent pass-through of ordinary steps.
func ExpandPlan(raw []RawNode) []RawNode {
	if !config.Bool("ADVANCED_PLANNING", false) {
		return raw
	}
	var out []RawNode
	expand(raw, &out)
	return out
}

func expand(seq []RawNode, out *[]RawNode) {
	for _, item := range seq {
		switch {
		case item["if"] != nil:
			then, ok := item["then"].([]any)
			if !ok {
				*out = append(*out, item)
				continue
			}
			if isTruthy(item["if"]) {
				expand(asNodes(then), out)
			} else if els, ok := item["else"].([]any); ok {
				expand(asNodes(els), out)
			}

		case item["while"] != nil:
			steps, ok := item["steps"].([]any)
			if !ok {
				*out = append(*out, item)
				continue
			}
			spec, _ := item["while"].(map[string]any)
			cond := true
			if spec != nil {
				if c, ok := spec["cond"]; ok {
					cond = isTruthy(c)
				}
			}
			maxIters := intOf(spec["max"], 1)
			if cond {
				for i := 0; i < maxIters; i++ {
					expand(asNodes(steps), out)
				}
			}

		case item["loop"] != nil:
			steps, ok := item["steps"].([]any)
			if !ok {
				*out = append(*out, item)
				continue
			}
			spec, _ := item["loop"].(map[string]any)
			n := intOf(spec["range"], 0)
			if n == 0 {
				n = intOf(spec["times"], 0)
			}
			for i := 0; i < n; i++ {
				expand(asNodes(steps), out)
			}

		default:
			*out = append(*out, item)
		}
	}
}

func asNodes(v []any) []RawNode {
	out := make([]RawNode, 0, len(v))
	for _, e := range v {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// isTruthy mirrors advanced.py's _is_truthy: bool as-is, numbers != 0,
// recognized truthy strings (case-insensitive; any other string is false),
// nil false, and any other value true.
func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(t) {
		case "true", "1", "yes", "always":
			return true
		}
		return false
	default:
		return v != nil
	}
}

func intOf(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
		return def
	default:
		return def
	}
}
