package compiler

import (
	"fmt"

	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// Node is an operator in the compilation registry, keyed by canonical name.
// Nodes form a DAG: a filter may feed several joins.
//
// OutputVariables are the slots of the first clause or join that created the
// node. A reused node keeps them; each use carries its own slots in the
// active list.
type Node struct {
	Name            string
	Kind            topology.Kind
	OutputVariables []int

	// Filter only
	Terms  []string
	Clause int

	// Join only
	Left, Right string
	Spec        *topology.JoinSpec

	// Uses counts how many times the node entered the active list.
	Uses int
}

// Arity returns the number of output positions.
func (n *Node) Arity() int {
	return len(n.OutputVariables)
}

// DistinctVariables returns the output slots with repeats removed, in first
// occurrence order.
func (n *Node) DistinctVariables() []int {
	seen := make(map[int]bool, len(n.OutputVariables))
	out := make([]int, 0, len(n.OutputVariables))
	for _, v := range n.OutputVariables {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (n *Node) String() string {
	if n.Kind == topology.KindJoin {
		return fmt.Sprintf("Join(%s ⋈ %s) → %v", n.Left, n.Right, n.OutputVariables)
	}
	return fmt.Sprintf("Filter%s → %v", n.Name, n.OutputVariables)
}

// activeRef is one not-yet-joined entry of the active list.
type activeRef struct {
	name string
	vars []int
}

func (r activeRef) shares(other activeRef) bool {
	for _, a := range r.vars {
		for _, b := range other.vars {
			if a == b {
				return true
			}
		}
	}
	return false
}
