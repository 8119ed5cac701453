package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wjabrac/agentrun/pkg/planner"
)

func TestNeedsHITLSingleIndependentStep(t *testing.T) {
	if needsHITL([]planner.Step{{Tool: "a"}}) {
		t.Fatal("a single step with no dependencies should not need HITL")
	}
}

func TestNeedsHITLMultipleSteps(t *testing.T) {
	if !needsHITL([]planner.Step{{Tool: "a"}, {Tool: "b"}}) {
		t.Fatal("multiple steps should need HITL")
	}
}

func TestNeedsHITLSingleStepWithDependsOn(t *testing.T) {
	if !needsHITL([]planner.Step{{Tool: "a", DependsOn: []string{"b"}}}) {
		t.Fatal("a step declaring depends_on should need HITL")
	}
}

func TestAwaitHumanApprovalDisabled(t *testing.T) {
	t.Setenv("HITL_DEFAULT", "false")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := awaitHumanApproval(ctx, nil, "", "phase", nil); err != nil {
		t.Fatalf("expected no-op when HITL_DEFAULT is false, got %v", err)
	}
}

func TestAwaitHumanApprovalTokenAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	token := filepath.Join(dir, "hitl.ok")
	if err := os.WriteFile(token, []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HITL_DEFAULT", "true")
	t.Setenv("HITL_TOKEN", token)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := awaitHumanApproval(ctx, nil, "", "phase", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(token); !os.IsNotExist(err) {
		t.Fatal("expected token file to be removed")
	}
}

func TestAwaitHumanApprovalContextCancelled(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HITL_DEFAULT", "true")
	t.Setenv("HITL_TOKEN", filepath.Join(dir, "never-appears.ok"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := awaitHumanApproval(ctx, nil, "", "phase", nil); err == nil {
		t.Fatal("expected context deadline error")
	}
}
