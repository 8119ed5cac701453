package planner

import (
	"context"
	"testing"
)

func TestRuleBasedPlanWebKeyword(t *testing.T) {
	steps := PlanSteps(context.Background(), "please fetch this URL for me", nil)
	if len(steps) != 1 || steps[0].Tool != "web_fetch" {
		t.Fatalf("got %+v, want single web_fetch step", steps)
	}
}

func TestRuleBasedPlanPDFKeyword(t *testing.T) {
	steps := PlanSteps(context.Background(), "summarize report.pdf", nil)
	if len(steps) != 1 || steps[0].Tool != "pdf_text" {
		t.Fatalf("got %+v, want single pdf_text step", steps)
	}
}

func TestRuleBasedPlanBothKeywords(t *testing.T) {
	steps := PlanSteps(context.Background(), "fetch this web page and also read the .pdf", nil)
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Tool != "web_fetch" || steps[1].Tool != "pdf_text" {
		t.Fatalf("got %+v, want [web_fetch pdf_text]", steps)
	}
}

func TestRuleBasedPlanCSVKeyword(t *testing.T) {
	steps := PlanSteps(context.Background(), "parse data.csv please", nil)
	if len(steps) != 1 || steps[0].Tool != "csv_parse" {
		t.Fatalf("got %+v, want single csv_parse step", steps)
	}
}

func TestRuleBasedPlanSearchKeyword(t *testing.T) {
	steps := PlanSteps(context.Background(), "find me a good restaurant", nil)
	if len(steps) != 1 || steps[0].Tool != "search" {
		t.Fatalf("got %+v, want single search step", steps)
	}
}

func TestRuleBasedPlanDefaultFallback(t *testing.T) {
	steps := PlanSteps(context.Background(), "do something unrelated", nil)
	if len(steps) != 1 || steps[0].Tool != "web_fetch" {
		t.Fatalf("got %+v, want default single web_fetch step", steps)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	s := Step{Tool: "web_fetch"}
	s.Normalize()
	if s.TimeoutS != 20 {
		t.Fatalf("got timeout %d, want 20", s.TimeoutS)
	}
	if s.Retries != 1 {
		t.Fatalf("got retries %d, want 1", s.Retries)
	}
	if s.Args == nil {
		t.Fatalf("expected non-nil Args map")
	}
}

func TestNormalizePreservesExplicitValues(t *testing.T) {
	s := Step{Tool: "web_fetch", TimeoutS: 5, Retries: 3, Args: map[string]any{"url": "x"}}
	s.Normalize()
	if s.TimeoutS != 5 || s.Retries != 3 {
		t.Fatalf("got %+v, want explicit values preserved", s)
	}
}

func TestPlanWithOllamaUnreachableFallsBack(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://127.0.0.1:1")
	steps := PlanSteps(context.Background(), "fetch a url", []string{"web_fetch"})
	if len(steps) != 1 || steps[0].Tool != "web_fetch" {
		t.Fatalf("expected rule-based fallback when Ollama is unreachable, got %+v", steps)
	}
}
