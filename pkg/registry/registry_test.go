package registry

import (
	"context"
	"testing"

	"github.com/wjabrac/agentrun/pkg/metrics"
)

func echoSpec() *ToolSpec {
	return &ToolSpec{
		Name: "echo",
		Run: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return args, nil
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	if err := r.Register(echoSpec()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	spec, err := r.Get("echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if spec.Name != "echo" {
		t.Fatalf("got name %q, want echo", spec.Name)
	}
}

func TestGetNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRegisterOverwritesDuplicate(t *testing.T) {
	r := New()
	first := echoSpec()
	second := &ToolSpec{Name: "echo", Description: "v2", Run: first.Run}

	if err := r.Register(first); err != nil {
		t.Fatalf("Register first: %v", err)
	}
	if err := r.Register(second); err != nil {
		t.Fatalf("Register second: %v", err)
	}

	got, err := r.Get("echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Description != "v2" {
		t.Fatalf("expected overwrite to win, got description %q", got.Description)
	}
}

func TestGetRecordsMetricsExactlyOnce(t *testing.T) {
	m := metrics.New()
	r := New(WithMetrics(m))
	_ = r.Register(echoSpec())

	if _, err := r.Get("echo"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Fatalf("expected error for missing tool")
	}

	families, err := m.Prometheus().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "agentrun_registry_tool_requests_total" {
			found = true
			if len(f.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Fatalf("tool_requests_total metric not found")
	}
}

func TestCountAndNames(t *testing.T) {
	r := New()
	_ = r.Register(echoSpec())
	_ = r.Register(&ToolSpec{Name: "sleep", Run: echoSpec().Run})

	if r.Count() != 2 {
		t.Fatalf("expected count 2, got %d", r.Count())
	}
	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
}
