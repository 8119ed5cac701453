package executor

import (
	"github.com/wjabrac/agentrun/pkg/planner"
	"github.com/wjabrac/agentrun/pkg/xerrors"
)

// validateSteps normalizes each raw step and rejects any that violate
// spec.md §3's Step invariants: tool must be non-empty, timeout_s > 0,
// retries >= 1. Normalize() first replaces a zero or negative timeout_s or
// retries with its default (20 and 1), so those two checks never trip on a
// normalized step; in practice only an empty tool is rejected.
func validateSteps(steps []planner.Step) ([]planner.Step, error) {
	out := make([]planner.Step, len(steps))
	for i, s := range steps {
		s.Normalize()
		if s.Tool == "" {
			return nil, &xerrors.InvalidStepError{Index: i, Reason: "tool must be non-empty"}
		}
		if s.TimeoutS <= 0 {
			return nil, &xerrors.InvalidStepError{Index: i, Reason: "timeout_s must be > 0"}
		}
		if s.Retries < 1 {
			return nil, &xerrors.InvalidStepError{Index: i, Reason: "retries must be >= 1"}
		}
		out[i] = s
	}
	return out, nil
}
