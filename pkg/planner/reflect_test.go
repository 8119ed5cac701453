package planner

import (
	"context"
	"testing"
)

func TestMaybeReplanDisabledByDefault(t *testing.T) {
	got := MaybeReplan(context.Background(), nil, "t1", "prompt", nil)
	if got != nil {
		t.Fatalf("got %+v, want nil when ENABLE_REFLECTION unset", got)
	}
}

func TestMaybeReplanEmptyOutputsBootstraps(t *testing.T) {
	t.Setenv("ENABLE_REFLECTION", "true")
	t.Setenv("REPLAN_ON_EMPTY", "true")
	got := MaybeReplan(context.Background(), nil, "t1", "prompt", nil)
	if len(got) != 1 || got[0].Tool != "web_fetch" || got[0].Args["url"] != "https://example.com" {
		t.Fatalf("got %+v, want bootstrap web_fetch step", got)
	}
}

func TestMaybeReplanNoEscalationBelowThreshold(t *testing.T) {
	t.Setenv("ENABLE_REFLECTION", "true")
	t.Setenv("ESCALATE_ON_FAILURE", "true")
	outcomes := []Outcome{
		{Tool: "a", Output: map[string]any{"ok": true}},
		{Tool: "b", Output: map[string]any{"ok": true}},
		{Tool: "c", Output: nil},
	}
	got := MaybeReplan(context.Background(), nil, "t1", "prompt", outcomes)
	if got != nil {
		t.Fatalf("got %+v, want nil when failures below threshold", got)
	}
}

func TestMaybeReplanEscalatesAtThreshold(t *testing.T) {
	t.Setenv("ENABLE_REFLECTION", "true")
	t.Setenv("ESCALATE_ON_FAILURE", "true")
	outcomes := []Outcome{
		{Tool: "a", Output: nil},
		{Tool: "b", Output: map[string]any{"ok": true}},
	}
	got := MaybeReplan(context.Background(), nil, "t1", "do the task", outcomes)
	if len(got) != 1 || got[0].Tool != "agent.delegate" {
		t.Fatalf("got %+v, want single agent.delegate escalation step", got)
	}
	if got[0].Args["prompt"] != "do the task" {
		t.Fatalf("got args %+v, want prompt forwarded", got[0].Args)
	}
}

func TestMaybeReplanSingleFailureEscalates(t *testing.T) {
	t.Setenv("ENABLE_REFLECTION", "true")
	t.Setenv("ESCALATE_ON_FAILURE", "true")
	outcomes := []Outcome{{Tool: "a", Output: nil}}
	got := MaybeReplan(context.Background(), nil, "t1", "prompt", outcomes)
	if len(got) != 1 || got[0].Tool != "agent.delegate" {
		t.Fatalf("got %+v, want escalation on sole failing outcome (1 of 1 is at least half)", got)
	}
}
