// Package executor implements the executor (L9) — spec.md calls it "the
// heart" of the runtime: resolves a plan's dependency graph, schedules
// bounded-parallel waves, drives each step through policy/cache/sandbox/
// retry/fallback, gates multi-phase plans behind the HITL barrier, and
// hands off to the planner's reflection pass once the DAG is exhausted.
//
// Grounded throughout on original_source/core/agentControl.py's
// execute_steps/_run_with_policy/_toposort — the wave-by-wave remaining-set
// levelization, the prior_error cascade on a failed dependency, and the
// reflection tail call are all carried over structurally; only the
// concurrency primitives change (goroutines + errgroup instead of a
// ThreadPoolExecutor).
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wjabrac/agentrun/pkg/budget"
	"github.com/wjabrac/agentrun/pkg/cache"
	"github.com/wjabrac/agentrun/pkg/metrics"
	"github.com/wjabrac/agentrun/pkg/planner"
	"github.com/wjabrac/agentrun/pkg/policy"
	"github.com/wjabrac/agentrun/pkg/rctx"
	"github.com/wjabrac/agentrun/pkg/registry"
	"github.com/wjabrac/agentrun/pkg/sandbox"
	"github.com/wjabrac/agentrun/pkg/trace"
	"github.com/wjabrac/agentrun/pkg/xerrors"
)

// Runtime bundles every singleton collaborator ExecuteSteps needs. The
// root facade package constructs one and holds it for the process
// lifetime.
type Runtime struct {
	Registry *registry.Registry
	Trace    *trace.Log
	Metrics  *metrics.Registry
	Cache    *cache.Cache
	Budget   *budget.Manager
	Policy   *policy.Engine
	Sandbox  sandbox.Runner // used only for RISKY_TOOLS members
}

// Output is one completed step's result, in the shape ListRecentTraces /
// GetTraceSummary consumers and callers of ExecuteSteps both expect.
type Output struct {
	Tool   string         `json:"tool"`
	Output map[string]any `json:"output"`
}

// Result is ExecuteSteps' return value: the trace this run was recorded
// under, every completed output in execution order, and any steps that
// could not run because a budget scope was exhausted.
type Result struct {
	TraceID string
	Outputs []Output
	Queued  []planner.Step
}

const maxWaveWorkers = 4

// RawSteps is the caller-supplied plan shape, prior to advanced-planning
// expansion: a step, or an if/while/loop control node, as JSON-decoded
// maps — matching spec.md §4.6's control-flow nodes, which have no typed
// Go representation until ExpandPlan flattens them into ordinary steps.
type RawSteps = []planner.RawNode

// ResolveSteps turns a prompt and/or caller-supplied raw steps into a flat,
// validated []planner.Step: plan (if steps is empty), expand any
// if/while/loop control nodes, then normalize and validate each resulting
// step.
func ResolveSteps(ctx context.Context, prompt string, raw RawSteps, toolNames []string) ([]planner.Step, error) {
	if len(raw) == 0 {
		planned := planner.PlanSteps(ctx, prompt, toolNames)
		raw = stepsToRaw(planned)
	}
	expanded := planner.ExpandPlan(raw)

	steps, err := rawToSteps(expanded)
	if err != nil {
		return nil, err
	}
	return validateSteps(steps)
}

func stepsToRaw(steps []planner.Step) RawSteps {
	out := make(RawSteps, len(steps))
	for i, s := range steps {
		data, _ := json.Marshal(s)
		var m planner.RawNode
		_ = json.Unmarshal(data, &m)
		out[i] = m
	}
	return out
}

func rawToSteps(raw RawSteps) ([]planner.Step, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("executor: marshal raw steps: %w", err)
	}
	var steps []planner.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("executor: decode raw steps: %w", err)
	}
	return steps, nil
}

// ExecuteSteps runs steps (already resolved by ResolveSteps) to
// completion: HITL gate on the whole plan, wave-by-wave scheduling with
// prior_error cascading, a reflection tail pass, and session-kv
// persistence of every completed output.
func (rt *Runtime) ExecuteSteps(ctx context.Context, prompt string, steps []planner.Step, threadID string, tags []string) (*Result, error) {
	tr, err := rt.Trace.StartTrace(ctx, threadID)
	if err != nil {
		return nil, err
	}
	ctx = rctx.With(ctx, rctx.Ambient{ThreadID: threadID, TraceID: tr.ID, Tags: tags})

	if len(steps) > 0 {
		raw := stepsToRaw(steps)
		_, _ = rt.Trace.Emit(ctx, tr.ID, trace.RolePlannerProposed, map[string]any{"steps": raw})
	}

	if needsHITL(steps) {
		if err := awaitHumanApproval(ctx, rt.Trace, tr.ID, "phase:plan_review", steps); err != nil {
			return nil, err
		}
	}

	nodes := buildDAG(steps)
	remaining := make(map[int]bool, len(steps))
	for i := range steps {
		remaining[i] = true
	}

	var outputs []Output
	var outcomes []planner.Outcome
	var queued []planner.Step
	budgetExhausted := false

	for len(remaining) > 0 {
		ready := readyWave(nodes, remaining)
		if len(ready) == 0 {
			for i := range remaining {
				rt.recordSkip(steps[i].Tool, "blocked")
				rt.emit(ctx, trace.RoleExecutorSkip, map[string]any{"tool": steps[i].Tool, "reason": "blocked"})
				delete(remaining, i)
			}
			break
		}

		wave := make([]planner.Step, len(ready))
		for k, i := range ready {
			wave[k] = steps[i]
		}
		if len(wave) > 1 && needsHITL(wave) {
			if err := awaitHumanApproval(ctx, rt.Trace, tr.ID, "phase:wave_start", wave); err != nil {
				return nil, err
			}
		}

		results := rt.runWave(ctx, ready, steps)

		for idx, res := range results {
			if res.err == nil {
				outputs = append(outputs, Output{Tool: res.result.Tool, Output: res.result.Output})
				outcomes = append(outcomes, planner.Outcome{Tool: res.result.Tool, Output: res.result.Output})
				delete(remaining, idx)
				continue
			}
			if budgetExhausted {
				continue
			}
			if _, ok := res.err.(*xerrors.BudgetExceededError); ok {
				budgetExhausted = true
				continue
			}
			outcomes = append(outcomes, planner.Outcome{Tool: steps[idx].Tool, Output: nil})
			delete(remaining, idx)
			for j := range remaining {
				for _, dep := range steps[j].DependsOn {
					if dep == steps[idx].Tool {
						rt.recordSkip(steps[j].Tool, "prior_error")
						rt.emit(ctx, trace.RoleExecutorSkip, map[string]any{"tool": steps[j].Tool, "reason": "prior_error"})
						delete(remaining, j)
						break
					}
				}
			}
		}

		if budgetExhausted {
			for i := range remaining {
				queued = append(queued, steps[i])
			}
			break
		}
	}

	if extra := planner.MaybeReplan(ctx, rt.Trace, tr.ID, prompt, outcomes); len(extra) > 0 {
		for _, s := range extra {
			s.Normalize()
			res, err := rt.runStep(ctx, s)
			if err != nil {
				continue
			}
			outputs = append(outputs, Output{Tool: res.Tool, Output: res.Output})
		}
	}

	for _, o := range outputs {
		if data, err := json.Marshal(o.Output); err == nil {
			_ = rt.Trace.PutSessionKV(ctx, threadID, "step:"+o.Tool, string(data))
		}
	}

	return &Result{TraceID: tr.ID, Outputs: outputs, Queued: queued}, nil
}

type waveResult struct {
	result stepResult
	err    error
}

// runWave executes the indices in ready concurrently, bounded to
// min(maxWaveWorkers, len(ready)) in flight at once, grounded on the
// teacher's errgroup.WithContext + results-channel pattern
// (pkg/agent/workflowagent/parallel.go). A per-step error is captured in
// the result rather than propagated through the group, since one step
// failing must not cancel its siblings — only its own dependents, which
// ExecuteSteps handles after runWave returns.
func (rt *Runtime) runWave(ctx context.Context, ready []int, steps []planner.Step) map[int]waveResult {
	limit := len(ready)
	if limit > maxWaveWorkers {
		limit = maxWaveWorkers
	}
	sem := make(chan struct{}, limit)

	results := make(map[int]waveResult, len(ready))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, idx := range ready {
		idx := idx
		s := steps[idx]
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := rt.runStep(gctx, s)
			mu.Lock()
			results[idx] = waveResult{result: res, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (rt *Runtime) recordSkip(tool, reason string) {
	if rt.Metrics != nil {
		rt.Metrics.RecordSkip(tool, reason)
	}
	if rt.Trace != nil {
		rt.Trace.RecordSkip(tool, reason)
	}
}
