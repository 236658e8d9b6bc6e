package compiler

import (
	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// CompileJoins folds the active list into a single root.
//
// Each step takes the first entry and joins it with the first later entry
// sharing a slot. When it has no partner it is cross joined with the second
// entry. The joined reference goes to the end of the list. N entries take
// exactly N-1 steps.
func (ctx *Context) CompileJoins() error {
	if err := ctx.enter("CompileJoins", stateFiltered); err != nil {
		return err
	}

	for len(ctx.active) > 1 {
		i, j, connected := pickPair(ctx.active)
		left, right := ctx.active[i], ctx.active[j]

		joined := ctx.join(left, right, connected)

		rest := make([]activeRef, 0, len(ctx.active)-1)
		for k, ref := range ctx.active {
			if k != i && k != j {
				rest = append(rest, ref)
			}
		}
		ctx.active = append(rest, joined)
		ctx.joinSteps++
	}

	root := ctx.active[0]
	ctx.root = &root
	ctx.state = stateJoined
	return nil
}

// pickPair returns the first entry and its first partner, or (0, 1) when
// the first entry shares no slot with any other.
func pickPair(active []activeRef) (int, int, bool) {
	for j := 1; j < len(active); j++ {
		if active[0].shares(active[j]) {
			return 0, j, true
		}
	}
	return 0, 1, false
}

func (ctx *Context) join(left, right activeRef, connected bool) activeRef {
	spec := BuildJoinSpec(left.vars, right.vars)
	name := JoinName(left.name, right.name, spec.Keys)

	vars := make([]int, 0, len(left.vars)+len(right.vars))
	vars = append(vars, left.vars...)
	vars = append(vars, right.vars...)

	event := annotations.JoinReused
	node, ok := ctx.registry[name]
	if !ok {
		node = &Node{
			Name:            name,
			Kind:            topology.KindJoin,
			OutputVariables: vars,
			Left:            left.name,
			Right:           right.name,
			Spec:            spec,
		}
		ctx.register(node)
		event = annotations.JoinCreated
	}
	node.Uses++

	data := map[string]interface{}{
		"name":       name,
		"left.vars":  left.vars,
		"right.vars": right.vars,
		"keys":       spec.Keys,
	}
	ctx.collector.AddEvent(event, data)
	if !connected {
		ctx.collector.AddEvent(annotations.JoinCross, data)
	}
	return activeRef{name: name, vars: vars}
}

// BuildJoinSpec computes the positional join contract between two output
// slot lists.
func BuildJoinSpec(left, right []int) *topology.JoinSpec {
	spec := &topology.JoinSpec{
		LeftMatch:  make([]int, len(left)),
		RightMatch: make([]int, len(right)),
		Template:   make([]topology.Source, 0, len(left)+len(right)),
	}

	for i, slot := range left {
		spec.LeftMatch[i] = indexOf(right, slot)
	}
	for i, slot := range right {
		spec.RightMatch[i] = indexOf(left, slot)
	}

	seen := make(map[int]bool)
	for i, slot := range left {
		if spec.LeftMatch[i] == topology.NoMatch || seen[slot] {
			continue
		}
		seen[slot] = true
		spec.Keys = append(spec.Keys, topology.KeyPair{Left: i, Right: spec.LeftMatch[i]})
	}

	for i := range left {
		spec.Template = append(spec.Template, topology.Source{Side: topology.Left, Pos: i})
	}
	for i := range right {
		spec.Template = append(spec.Template, topology.Source{Side: topology.Right, Pos: i})
	}
	return spec
}

func indexOf(slots []int, slot int) int {
	for i, s := range slots {
		if s == slot {
			return i
		}
	}
	return topology.NoMatch
}
