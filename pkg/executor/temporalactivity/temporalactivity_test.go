package temporalactivity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/wjabrac/agentrun/pkg/executor"
)

type fakeRunner struct {
	result *executor.Result
	err    error
}

func (f *fakeRunner) ExecuteSteps(ctx context.Context, prompt string, raw executor.RawSteps, threadID string, tags []string) (*executor.Result, error) {
	return f.result, f.err
}

func TestAdapterExecuteStepsWrapsRunner(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{
		TraceID: "trace-1",
		Outputs: []executor.Output{{Tool: "echo", Output: map[string]any{"msg": "hi"}}},
	}}
	a := New(runner)

	var env testsuite.TestActivityEnvironment
	out, err := env.ExecuteActivity(a.ExecuteSteps, Input{Prompt: "hi", ThreadID: "t1"})
	require.NoError(t, err)

	var result Output
	require.NoError(t, out.Get(&result))
	assert.Equal(t, "trace-1", result.TraceID)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, "echo", result.Outputs[0].Tool)
}
