package agentrun

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjabrac/agentrun/pkg/executor"
	"github.com/wjabrac/agentrun/pkg/sandbox"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	os.Setenv("HITL_DEFAULT", "false")
	rt, err := New(context.Background(), Options{StorePath: ":memory:", Sandbox: sandbox.Direct{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestNewDiscoversBuiltins(t *testing.T) {
	rt := newTestRuntime(t)
	assert.Contains(t, rt.ToolNames(), "echo")
}

func TestExecuteStepsRunsEchoStep(t *testing.T) {
	rt := newTestRuntime(t)
	raw := executor.RawSteps{
		{"tool": "echo", "args": map[string]any{"msg": "hi"}},
	}
	res, err := rt.ExecuteSteps(context.Background(), "", raw, "thread-1", nil)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "echo", res.Outputs[0].Tool)
}

func TestComputeInsightsAfterExecute(t *testing.T) {
	rt := newTestRuntime(t)
	raw := executor.RawSteps{
		{"tool": "echo", "args": map[string]any{}},
	}
	_, err := rt.ExecuteSteps(context.Background(), "", raw, "thread-1", nil)
	require.NoError(t, err)

	report, err := rt.ComputeInsights(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.Tools)
}

func TestListRecentTracesAndSummary(t *testing.T) {
	rt := newTestRuntime(t)
	raw := executor.RawSteps{
		{"tool": "echo", "args": map[string]any{}},
	}
	res, err := rt.ExecuteSteps(context.Background(), "", raw, "thread-1", nil)
	require.NoError(t, err)

	traces, err := rt.ListRecentTraces(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, traces)

	summary, err := rt.GetTraceSummary(context.Background(), res.TraceID)
	require.NoError(t, err)
	assert.Equal(t, res.TraceID, summary.Trace.ID)
}
