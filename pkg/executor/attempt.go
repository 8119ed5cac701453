package executor

import (
	"context"
	"math"
	"time"

	"github.com/wjabrac/agentrun/pkg/cache"
	"github.com/wjabrac/agentrun/pkg/instrument"
	"github.com/wjabrac/agentrun/pkg/planner"
	"github.com/wjabrac/agentrun/pkg/policy"
	"github.com/wjabrac/agentrun/pkg/rctx"
	"github.com/wjabrac/agentrun/pkg/registry"
	"github.com/wjabrac/agentrun/pkg/sandbox"
	"github.com/wjabrac/agentrun/pkg/trace"
	"github.com/wjabrac/agentrun/pkg/xerrors"
)

// stepResult is what runStep returns for one step: the tool actually
// invoked (the fallback's name if the primary exhausted its retries) and
// its output.
type stepResult struct {
	Tool   string         `json:"tool"`
	Output map[string]any `json:"output"`
}

// runStep executes one validated step: resolve -> policy -> cache lookup
// -> budget gate -> attempt loop (direct or sandboxed, with backoff between
// attempts) -> fallback, per spec.md §4.8.4-5 / agentControl.py's
// _run_with_policy.
func (rt *Runtime) runStep(ctx context.Context, s planner.Step) (stepResult, error) {
	amb := rctx.From(ctx)

	spec, err := rt.Registry.Get(s.Tool)
	if err != nil {
		rt.emit(ctx, trace.RoleToolLookupError, map[string]any{"tool": s.Tool})
		if rt.Trace != nil {
			rt.Trace.RecordNotFound(s.Tool)
		}
		return stepResult{}, err
	}

	if err := rt.Policy.CheckToolAllowed(ctx, s.Tool, s.Args); err != nil {
		return stepResult{}, err
	}

	var argsHash string
	if s.TTLSeconds > 0 {
		if h, err := cache.ArgsHash(s.Args); err == nil {
			argsHash = h
			if cached, ok, _ := rt.Cache.Get(ctx, s.Tool, argsHash); ok {
				rt.emit(ctx, trace.RoleExecutorCacheHit, map[string]any{"tool": s.Tool})
				return stepResult{Tool: s.Tool, Output: cached}, nil
			}
		}
	}

	if rt.Budget != nil {
		if err := rt.Budget.CheckAndDecrement(s.Tool, 1, amb.Tags); err != nil {
			return stepResult{}, err
		}
	}

	runFn := instrument.Wrap(s.Tool, spec.Run, rt.Trace, rt.Metrics)

	var lastErr error
	attempts := s.Retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := rt.invoke(ctx, s.Tool, runFn, s.Args, s.TimeoutS)
		if err == nil {
			if sizeErr := policy.CheckOutputSize(out); sizeErr != nil {
				lastErr = sizeErr
			} else {
				rt.emit(ctx, trace.RoleToolResult, map[string]any{"tool": s.Tool, "success": true})
				if s.TTLSeconds > 0 && argsHash != "" {
					_ = rt.Cache.Put(ctx, s.Tool, argsHash, out, s.TTLSeconds)
				}
				rt.Registry.RecordUse(s.Tool, false)
				return stepResult{Tool: s.Tool, Output: out}, nil
			}
		} else {
			lastErr = err
		}

		rt.emit(ctx, trace.RoleToolResult, map[string]any{
			"tool": s.Tool, "success": false, "error": lastErr.Error(), "attempt": attempt,
		})
		if attempt < attempts {
			backoff(ctx, attempt-1)
		}
	}

	if s.FallbackTool != "" {
		if fbSpec, ferr := rt.Registry.Get(s.FallbackTool); ferr == nil {
			fbFn := instrument.Wrap(s.FallbackTool, fbSpec.Run, rt.Trace, rt.Metrics)
			if out, err := rt.invoke(ctx, s.FallbackTool, fbFn, s.Args, s.TimeoutS); err == nil {
				if sizeErr := policy.CheckOutputSize(out); sizeErr == nil {
					rt.emit(ctx, trace.RoleExecutorFallback, map[string]any{"from": s.Tool, "to": s.FallbackTool})
					rt.Registry.RecordUse(s.FallbackTool, false)
					return stepResult{Tool: s.FallbackTool, Output: out}, nil
				}
			} else {
				rt.emit(ctx, trace.RoleExecutorFallbackErr, map[string]any{
					"from": s.Tool, "to": s.FallbackTool, "error": err.Error(),
				})
			}
		}
	}

	rt.Registry.RecordUse(s.Tool, true)
	if lastErr == nil {
		lastErr = xerrors.ErrToolFailed
	}
	return stepResult{}, &xerrors.ToolFailedError{Tool: s.Tool, Cause: lastErr}
}

// invoke runs fn under the sandbox appropriate to tool: a re-exec'd child
// process for RISKY_TOOLS members, in-process with a context timeout
// otherwise.
func (rt *Runtime) invoke(ctx context.Context, tool string, fn registry.RunFunc, args map[string]any, timeoutS int) (map[string]any, error) {
	timeout := time.Duration(timeoutS) * time.Second
	if policy.IsRiskyTool(tool) && rt.Sandbox != nil {
		return rt.Sandbox.Run(ctx, tool, fn, args, timeout)
	}
	return sandbox.Direct{}.Run(ctx, tool, fn, args, timeout)
}

// backoff sleeps base 1.5 exponential capped at 5s, per agentControl.py's
// time.sleep(min(1.5**attempt, 5)) where attempt is 0-indexed (1s, 1.5s,
// 2.25s, ...). Callers pass a 0-indexed count, not the 1-indexed attempt
// number. Returns early if ctx is cancelled.
func backoff(ctx context.Context, attempt int) {
	d := time.Duration(math.Min(math.Pow(1.5, float64(attempt)), 5) * float64(time.Second))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// emit is a convenience wrapper around rt.Trace.Emit that reads the trace
// ID bound to ctx and no-ops if either is unavailable.
func (rt *Runtime) emit(ctx context.Context, role string, payload map[string]any) {
	if rt.Trace == nil {
		return
	}
	traceID := rctx.From(ctx).TraceID
	if traceID == "" {
		return
	}
	_, _ = rt.Trace.Emit(ctx, traceID, role, payload)
}
