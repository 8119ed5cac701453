package executor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/wjabrac/agentrun/pkg/config"
	"github.com/wjabrac/agentrun/pkg/planner"
	"github.com/wjabrac/agentrun/pkg/trace"
)

// needsHITL is the "multi-phase" heuristic: more than one step, or any step
// declaring depends_on, per agentControl.py's _needs_hitl.
func needsHITL(steps []planner.Step) bool {
	if len(steps) > 1 {
		return true
	}
	for _, s := range steps {
		if len(s.DependsOn) > 0 {
			return true
		}
	}
	return false
}

// awaitHumanApproval blocks until the HITL_TOKEN flag file appears, then
// removes it, per spec.md §4.8.6. Gated by HITL_DEFAULT (default true — no
// timeout is applied; a deployment that wants a bounded wait must supply
// its own watchdog around ExecuteSteps, since the source this is grounded
// on never bounds it either). No-op entirely when HITL_DEFAULT is false.
func awaitHumanApproval(ctx context.Context, log *trace.Log, traceID, phase string, steps []planner.Step) error {
	if !config.Bool("HITL_DEFAULT", true) {
		return nil
	}

	tools := make([]string, len(steps))
	for i, s := range steps {
		tools[i] = s.Tool
	}
	if log != nil && traceID != "" {
		_, _ = log.Emit(ctx, traceID, trace.RoleHITLAwait, map[string]any{"phase": phase, "steps": tools})
	}

	token := config.String("HITL_TOKEN", "/run/hitl.ok")
	path := token
	if !filepath.IsAbs(token) {
		path = filepath.Join(config.String("LOCAL_ROOT", "."), token)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(path); err == nil {
			_ = os.Remove(path)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
