package executor

import (
	"sort"

	"github.com/wjabrac/agentrun/pkg/planner"
)

// node is one step positioned in the DAG: dependsIdx holds the indices of
// steps it must wait on (by tool-name match), per spec.md §4.8.2.
type node struct {
	step       planner.Step
	index      int
	dependsIdx []int
}

// buildDAG resolves depends_on edges by tool name: for step i with
// depends_on = [d1, d2, ...], a dependency edge is recorded against every
// step j whose Tool equals some d_k — "wait for all matching upstream
// steps" semantics (an unresolved dependency name matching zero steps is a
// no-op, never blocking i). Self-references are ignored.
func buildDAG(steps []planner.Step) []*node {
	nodes := make([]*node, len(steps))
	for i, s := range steps {
		nodes[i] = &node{step: s, index: i}
	}

	byTool := map[string][]int{}
	for i, s := range steps {
		byTool[s.Tool] = append(byTool[s.Tool], i)
	}

	for i, s := range steps {
		for _, dep := range s.DependsOn {
			for _, j := range byTool[dep] {
				if j == i {
					continue
				}
				nodes[i].dependsIdx = append(nodes[i].dependsIdx, j)
			}
		}
	}
	return nodes
}

// readyWave returns the indices among remaining whose every dependency has
// already left remaining (i.e. completed, skipped, or failed — the caller
// has already removed it), per agentControl.py's execute_steps round-robin
// levelization. An empty result with remaining non-empty means a cycle or
// an unresolvable dependency: the caller treats every such index as
// blocked.
func readyWave(nodes []*node, remaining map[int]bool) []int {
	var ready []int
	for i := range remaining {
		blocked := false
		for _, d := range nodes[i].dependsIdx {
			if remaining[d] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, i)
		}
	}
	sort.Ints(ready)
	return ready
}
