package executor

import (
	"testing"

	"github.com/wjabrac/agentrun/pkg/planner"
)

func TestBuildDAGNoDependencies(t *testing.T) {
	steps := []planner.Step{{Tool: "a"}, {Tool: "b"}}
	nodes := buildDAG(steps)
	for _, n := range nodes {
		if len(n.dependsIdx) != 0 {
			t.Fatalf("expected no dependencies, got %v", n.dependsIdx)
		}
	}
}

func TestBuildDAGMatchesAllUpstreamByToolName(t *testing.T) {
	steps := []planner.Step{
		{Tool: "fetch"},
		{Tool: "fetch"}, // two producers of the same tool name
		{Tool: "report", DependsOn: []string{"fetch"}},
	}
	nodes := buildDAG(steps)
	if len(nodes[2].dependsIdx) != 2 {
		t.Fatalf("expected report to depend on both fetch steps, got %v", nodes[2].dependsIdx)
	}
}

func TestReadyWaveLevelization(t *testing.T) {
	steps := []planner.Step{
		{Tool: "a"},
		{Tool: "b", DependsOn: []string{"a"}},
		{Tool: "c", DependsOn: []string{"b"}},
	}
	nodes := buildDAG(steps)
	remaining := map[int]bool{0: true, 1: true, 2: true}

	wave1 := readyWave(nodes, remaining)
	if len(wave1) != 1 || wave1[0] != 0 {
		t.Fatalf("expected only step 0 ready, got %v", wave1)
	}
	delete(remaining, 0)

	wave2 := readyWave(nodes, remaining)
	if len(wave2) != 1 || wave2[0] != 1 {
		t.Fatalf("expected only step 1 ready, got %v", wave2)
	}
}

func TestReadyWaveCycleYieldsNothing(t *testing.T) {
	steps := []planner.Step{
		{Tool: "a", DependsOn: []string{"b"}},
		{Tool: "b", DependsOn: []string{"a"}},
	}
	nodes := buildDAG(steps)
	remaining := map[int]bool{0: true, 1: true}
	if wave := readyWave(nodes, remaining); len(wave) != 0 {
		t.Fatalf("expected no ready steps in a cycle, got %v", wave)
	}
}

func TestReadyWaveUnresolvedDependencyNameIsNoOp(t *testing.T) {
	steps := []planner.Step{{Tool: "a", DependsOn: []string{"nonexistent"}}}
	nodes := buildDAG(steps)
	remaining := map[int]bool{0: true}
	wave := readyWave(nodes, remaining)
	if len(wave) != 1 {
		t.Fatalf("expected unresolved dependency name to not block, got %v", wave)
	}
}
