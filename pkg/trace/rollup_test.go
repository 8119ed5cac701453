package trace

import (
	"context"
	"testing"

	"github.com/wjabrac/agentrun/pkg/store"
)

func TestRecentErrorsScansExecutorAndLookupErrors(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	log := New(s)
	ctx := context.Background()
	tr, err := log.StartTrace(ctx, "thread-1")
	if err != nil {
		t.Fatalf("StartTrace: %v", err)
	}

	_, _ = log.Emit(ctx, tr.ID, RoleExecutorError, map[string]any{"tool": "web_fetch", "error": "timeout"})
	_, _ = log.Emit(ctx, tr.ID, RoleToolLookupError, map[string]any{"tool": "missing"})
	_, _ = log.Emit(ctx, tr.ID, RoleExecutorDone, map[string]any{"tool": "web_fetch"})

	errs, err := log.RecentErrors(ctx, 100)
	if err != nil {
		t.Fatalf("RecentErrors: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 error events, got %d: %+v", len(errs), errs)
	}
}
