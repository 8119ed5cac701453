// Package temporalactivity adapts executor.Runtime.ExecuteSteps into a
// go.temporal.io/sdk activity, so a deployment that already runs Temporal
// can host this runtime as one activity inside a larger durable workflow
// instead of taking a workflow-determinism dependency in the core itself.
//
// ExecuteSteps is already activity-shaped (JSON-in, JSON-out, idempotent per
// trace ID), so this is a registration shim, not a new execution model.
// Grounded on original_source/services/temporal-worker/'s activity wrapper
// and the tool-activity dispatch pattern in
// other_examples/...temporal-agent-harness.../tool_execution.go (per-call
// ActivityOptions, heartbeat, structured output) — adapted here to wrap one
// ExecuteSteps call rather than one tool call, since the durable unit this
// runtime exposes is a step batch, not an individual tool invocation.
package temporalactivity

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"

	"github.com/wjabrac/agentrun/pkg/executor"
	"github.com/wjabrac/agentrun/pkg/planner"
)

// Runner is the subset of agentrun.Runtime the activity needs. Kept as an
// interface so this package never imports the root module (which would
// make a cycle: root imports pkg/executor, this package imports root).
type Runner interface {
	ExecuteSteps(ctx context.Context, prompt string, raw executor.RawSteps, threadID string, tags []string) (*executor.Result, error)
}

// Input is the activity's JSON-serializable argument.
type Input struct {
	Prompt   string            `json:"prompt"`
	Steps    executor.RawSteps `json:"steps,omitempty"`
	ThreadID string            `json:"thread_id"`
	Tags     []string          `json:"tags,omitempty"`
}

// Output is the activity's JSON-serializable result.
type Output struct {
	TraceID string            `json:"trace_id"`
	Outputs []executor.Output `json:"outputs"`
	Queued  []planner.Step    `json:"queued,omitempty"`
}

// Adapter bridges one Runner into the Temporal activity registry.
type Adapter struct {
	Runner Runner
}

// New wraps a Runner (an *agentrun.Runtime in practice) for activity
// registration.
func New(r Runner) *Adapter {
	return &Adapter{Runner: r}
}

// Register installs ExecuteSteps on w under the activity name
// "agentrun.ExecuteSteps", the name a calling workflow references via
// workflow.ExecuteActivity.
func (a *Adapter) Register(w worker.Worker) {
	w.RegisterActivityWithOptions(a.ExecuteSteps, activity.RegisterOptions{
		Name: "agentrun.ExecuteSteps",
	})
}

// ExecuteSteps is the activity function itself: plans (if Steps is empty)
// and executes, heartbeating once before the call so a long-running batch
// doesn't trip the activity's heartbeat timeout waiting on the first wave.
func (a *Adapter) ExecuteSteps(ctx context.Context, in Input) (Output, error) {
	activity.RecordHeartbeat(ctx, "executing")

	res, err := a.Runner.ExecuteSteps(ctx, in.Prompt, in.Steps, in.ThreadID, in.Tags)
	if err != nil {
		return Output{}, fmt.Errorf("temporalactivity: execute steps: %w", err)
	}
	return Output{TraceID: res.TraceID, Outputs: res.Outputs, Queued: res.Queued}, nil
}
