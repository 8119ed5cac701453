package planner

import "testing"

func TestExpandPlanDisabledByDefault(t *testing.T) {
	raw := []RawNode{
		{"if": true, "then": []any{map[string]any{"tool": "a"}}},
	}
	got := ExpandPlan(raw)
	if len(got) != 1 {
		t.Fatalf("expected pass-through when ADVANCED_PLANNING unset, got %+v", got)
	}
	if got[0]["if"] == nil {
		t.Fatalf("expected the raw control-flow node unexpanded, got %+v", got[0])
	}
}

func TestExpandPlanIfThen(t *testing.T) {
	t.Setenv("ADVANCED_PLANNING", "true")
	raw := []RawNode{
		{"if": true, "then": []any{map[string]any{"tool": "a"}}, "else": []any{map[string]any{"tool": "b"}}},
	}
	got := ExpandPlan(raw)
	if len(got) != 1 || got[0]["tool"] != "a" {
		t.Fatalf("got %+v, want [{tool:a}]", got)
	}
}

func TestExpandPlanIfElse(t *testing.T) {
	t.Setenv("ADVANCED_PLANNING", "true")
	raw := []RawNode{
		{"if": false, "then": []any{map[string]any{"tool": "a"}}, "else": []any{map[string]any{"tool": "b"}}},
	}
	got := ExpandPlan(raw)
	if len(got) != 1 || got[0]["tool"] != "b" {
		t.Fatalf("got %+v, want [{tool:b}]", got)
	}
}

func TestExpandPlanLoopTimes(t *testing.T) {
	t.Setenv("ADVANCED_PLANNING", "true")
	raw := []RawNode{
		{"loop": map[string]any{"times": 3}, "steps": []any{map[string]any{"tool": "a"}}},
	}
	got := ExpandPlan(raw)
	if len(got) != 3 {
		t.Fatalf("got %d steps, want 3", len(got))
	}
}

func TestExpandPlanWhileCondFalseSkips(t *testing.T) {
	t.Setenv("ADVANCED_PLANNING", "true")
	raw := []RawNode{
		{"while": map[string]any{"cond": false, "max": 5}, "steps": []any{map[string]any{"tool": "a"}}},
	}
	got := ExpandPlan(raw)
	if len(got) != 0 {
		t.Fatalf("got %+v, want empty", got)
	}
}

func TestExpandPlanWhileCondTrue(t *testing.T) {
	t.Setenv("ADVANCED_PLANNING", "true")
	raw := []RawNode{
		{"while": map[string]any{"cond": "yes", "max": 2}, "steps": []any{map[string]any{"tool": "a"}}},
	}
	got := ExpandPlan(raw)
	if len(got) != 2 {
		t.Fatalf("got %d steps, want 2", len(got))
	}
}

func TestExpandPlanPassesThroughOrdinarySteps(t *testing.T) {
	t.Setenv("ADVANCED_PLANNING", "true")
	raw := []RawNode{
		{"tool": "web_fetch", "args": map[string]any{"url": "https://example.com"}},
	}
	got := ExpandPlan(raw)
	if len(got) != 1 || got[0]["tool"] != "web_fetch" {
		t.Fatalf("got %+v, want untouched step", got)
	}
}

func TestIsTruthyStrings(t *testing.T) {
	cases := map[string]bool{
		"true": true, "1": true, "yes": true, "always": true,
		"false": false, "0": false, "no": false, "": false,
	}
	for s, want := range cases {
		if got := isTruthy(s); got != want {
			t.Errorf("isTruthy(%q) = %v, want %v", s, got, want)
		}
	}
}
