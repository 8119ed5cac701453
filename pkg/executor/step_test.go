package executor

import (
	"testing"

	"github.com/wjabrac/agentrun/pkg/planner"
)

func TestValidateStepsFillsDefaults(t *testing.T) {
	steps := []planner.Step{{Tool: "web_fetch"}}
	out, err := validateSteps(steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].TimeoutS != 20 || out[0].Retries != 1 {
		t.Fatalf("expected normalized defaults, got %+v", out[0])
	}
}

func TestValidateStepsRejectsEmptyTool(t *testing.T) {
	steps := []planner.Step{{Tool: ""}}
	if _, err := validateSteps(steps); err == nil {
		t.Fatal("expected error for empty tool")
	}
}

func TestValidateStepsNormalizesNegativeTimeout(t *testing.T) {
	steps := []planner.Step{{Tool: "x", TimeoutS: -5}}
	// Normalize() would reset <=0 timeout_s to 20, so validateSteps never
	// actually sees a negative value here; this documents that defaulting
	// happens first and an explicit negative can't surface as invalid_step.
	out, err := validateSteps(steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].TimeoutS != 20 {
		t.Fatalf("expected timeout_s normalized to 20, got %d", out[0].TimeoutS)
	}
}

func TestValidateStepsNormalizesNegativeRetries(t *testing.T) {
	steps := []planner.Step{{Tool: "x", Retries: -1}}
	out, err := validateSteps(steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Retries != 1 {
		t.Fatalf("expected retries normalized to 1, got %d", out[0].Retries)
	}
}
