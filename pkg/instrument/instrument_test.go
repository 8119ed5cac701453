package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/wjabrac/agentrun/pkg/metrics"
	"github.com/wjabrac/agentrun/pkg/rctx"
	"github.com/wjabrac/agentrun/pkg/store"
	"github.com/wjabrac/agentrun/pkg/trace"
)

func newTestLog(t *testing.T) *trace.Log {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return trace.New(s)
}

func TestWrapEmitsStartAndDoneOnSuccess(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()
	tr, err := log.StartTrace(ctx, "thread-1")
	if err != nil {
		t.Fatalf("StartTrace: %v", err)
	}
	ctx = rctx.With(ctx, rctx.Ambient{TraceID: tr.ID, ThreadID: "thread-1"})

	fn := func(_ context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}
	m := metrics.New()
	wrapped := Wrap("echo", fn, log, m)

	out, err := wrapped(ctx, map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("wrapped: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("got %+v", out)
	}

	summary, err := log.GetSummary(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	var roles []string
	for _, e := range summary.Events {
		roles = append(roles, e.Role)
	}
	wantStart, wantDone := false, false
	for _, r := range roles {
		if r == trace.RoleExecutorStart {
			wantStart = true
		}
		if r == trace.RoleExecutorDone {
			wantDone = true
		}
	}
	if !wantStart || !wantDone {
		t.Fatalf("got roles %v, want executor:start and executor:done", roles)
	}
}

func TestWrapEmitsErrorOnFailure(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()
	tr, err := log.StartTrace(ctx, "")
	if err != nil {
		t.Fatalf("StartTrace: %v", err)
	}
	ctx = rctx.With(ctx, rctx.Ambient{TraceID: tr.ID})

	fn := func(_ context.Context, args map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	}
	wrapped := Wrap("flaky", fn, log, nil)

	_, err = wrapped(ctx, nil)
	if err == nil {
		t.Fatalf("expected error")
	}

	summary, err := log.GetSummary(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	found := false
	for _, e := range summary.Events {
		if e.Role == trace.RoleExecutorError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected executor:error event")
	}
}

func TestWrapNoopWithoutTraceID(t *testing.T) {
	fn := func(_ context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}
	wrapped := Wrap("echo", fn, nil, nil)
	if _, err := wrapped(context.Background(), nil); err != nil {
		t.Fatalf("wrapped: %v", err)
	}
}
