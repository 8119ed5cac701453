package planner

import (
	"context"

	"github.com/wjabrac/agentrun/pkg/config"
	"github.com/wjabrac/agentrun/pkg/trace"
)

// Outcome is the minimal shape MaybeReplan needs from a completed step's
// result: whether it produced output. The executor passes one per
// completed step, in wave-completion order.
type Outcome struct {
	Tool   string
	Output map[string]any // nil means the step failed terminally
}

// MaybeReplan is the reflection checkpoint the executor invokes after its
// main DAG completes (spec.md §4.8.7): it may propose zero or more
// additional steps. Gated on ENABLE_REFLECTION (default off). Grounded on
// original_source/core/planning/reflection.py's maybe_replan: escalation
// fires when at least half of the outcomes failed, and the bootstrap
// (web_fetch) and escalation (agent.delegate) steps are hardcoded.
func MaybeReplan(ctx context.Context, log *trace.Log, traceID, prompt string, outcomes []Outcome) []Step {
	if !config.Bool("ENABLE_REFLECTION", false) {
		return nil
	}
	if log != nil {
		_, _ = log.Emit(ctx, traceID, trace.RoleReflectCheckpoint, map[string]any{"num_outputs": len(outcomes)})
	}

	if config.Bool("REPLAN_ON_EMPTY", false) && len(outcomes) == 0 {
		if log != nil {
			_, _ = log.Emit(ctx, traceID, trace.RoleReflectReplan, map[string]any{"reason": "empty_outputs"})
		}
		return []Step{
			{Tool: "web_fetch", Args: map[string]any{"url": "https://example.com"}},
		}
	}

	failures := 0
	for _, o := range outcomes {
		if o.Output == nil {
			failures++
		}
	}
	if config.Bool("ESCALATE_ON_FAILURE", false) && len(outcomes) > 0 && failures*2 >= len(outcomes) {
		if log != nil {
			_, _ = log.Emit(ctx, traceID, trace.RoleReflectEscalate, map[string]any{"failures": failures})
		}
		return []Step{
			{Tool: "agent.delegate", Args: map[string]any{"prompt": prompt, "tags": []string{"escalated"}}},
		}
	}

	return nil
}
