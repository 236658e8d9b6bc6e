package compiler

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// topologyNamespace scopes descriptor IDs so identical queries compiled with
// identical options always share an ID.
var topologyNamespace = uuid.MustParse("6f1c2a9e-7d3b-4e58-9a21-0c4b7e5d8f36")

// FinishQuery wires every node reachable from the root, attaches the
// terminal and returns the result. The context cannot be used afterwards.
func (ctx *Context) FinishQuery() (*Result, error) {
	if err := ctx.enter("FinishQuery", stateJoined); err != nil {
		return nil, err
	}

	root := ctx.registry[ctx.root.name]
	terminal, err := ctx.attachTerminal()
	if err != nil {
		return nil, ctx.fail(err)
	}

	text := ctx.pattern.String()
	desc := &topology.Descriptor{
		ID:       DescriptorID(text, ctx.opts),
		Query:    text,
		Input:    ctx.opts.InputFeed,
		Bindings: ctx.bindings.Strings(),
		Root:     root.Name,
		Terminal: terminal,
	}

	visited := make(map[string]bool, len(ctx.registry))
	ctx.wire(desc, root, visited)

	if err := desc.Validate(); err != nil {
		return nil, ctx.fail(fmt.Errorf("%w: %v", ErrContractViolation, err))
	}

	ctx.collector.AddEvent(annotations.TopologyWired, map[string]interface{}{
		"filters": desc.Count(topology.KindFilter),
		"joins":   desc.Count(topology.KindJoin),
	})

	result := &Result{
		Topology:    desc,
		Bindings:    ctx.bindings,
		Diagnostics: ctx.Diagnostics(),
		JoinSteps:   ctx.joinSteps,
		Nodes:       append([]*Node(nil), ctx.order...),
	}
	ctx.state = stateFinished
	ctx.collector.AddTiming(annotations.CompileComplete, ctx.start, map[string]interface{}{
		"success":     true,
		"id":          desc.ID,
		"join.steps":  ctx.joinSteps,
		"diagnostics": len(result.Diagnostics),
	})
	return result, nil
}

// attachTerminal projects the terminal variables onto root positions. A
// variable the root does not carry (only bound by a skipped clause or a
// nested pattern) leaves the root unobservable.
func (ctx *Context) attachTerminal() (*topology.Terminal, error) {
	if ctx.terminal == nil {
		return nil, nil
	}

	t := *ctx.terminal
	t.Source = ctx.root.name
	t.Projection = make([]int, len(t.Variables))
	for i, name := range t.Variables {
		slot, ok := ctx.bindings.Slot(query.Symbol(name))
		if !ok {
			return nil, fmt.Errorf("%w: terminal variable %s", ErrUnboundVariable, name)
		}
		pos := indexOf(ctx.root.vars, slot)
		if pos == topology.NoMatch {
			return nil, ctx.missingTerminal(fmt.Errorf("root does not produce %s", name))
		}
		t.Projection[i] = pos
	}
	if ctx.opts.EnableRetraction {
		t.Feedback = t.Name + ".feedback"
	}
	return &t, nil
}

// wire appends node and its upstreams in post-order, each exactly once.
func (ctx *Context) wire(desc *topology.Descriptor, node *Node, visited map[string]bool) {
	if visited[node.Name] {
		return
	}
	visited[node.Name] = true

	op := topology.Operator{
		Name:    node.Name,
		Kind:    node.Kind,
		Outputs: append([]int(nil), node.OutputVariables...),
	}

	switch node.Kind {
	case topology.KindFilter:
		op.Terms = append([]string(nil), node.Terms...)
		op.Upstreams = []topology.Upstream{{Source: desc.Input, Grouping: topology.Shuffle()}}
		if desc.Terminal != nil && desc.Terminal.Feedback != "" {
			op.Upstreams = append(op.Upstreams, topology.Upstream{
				Source:   desc.Terminal.Feedback,
				Grouping: topology.Broadcast(),
			})
		}

	case topology.KindJoin:
		left, right := ctx.registry[node.Left], ctx.registry[node.Right]
		ctx.wire(desc, left, visited)
		ctx.wire(desc, right, visited)

		op.Join = node.Spec
		op.Upstreams = joinUpstreams(left, right, node.Spec)
	}

	desc.Operators = append(desc.Operators, op)
}

// joinUpstreams emits the grouping contract: both sides partition on their
// index-aligned key positions, so equal join values meet on one instance. A
// cross join broadcasts the left side and partitions the right side on its
// whole tuple, so each pair meets exactly once.
func joinUpstreams(left, right *Node, spec *topology.JoinSpec) []topology.Upstream {
	if spec.IsCross() {
		all := make([]int, right.Arity())
		for i := range all {
			all[i] = i
		}
		return []topology.Upstream{
			{Source: left.Name, Grouping: topology.Broadcast()},
			{Source: right.Name, Grouping: topology.Fields(all...)},
		}
	}
	return []topology.Upstream{
		{Source: left.Name, Grouping: topology.Fields(spec.LeftKeys()...)},
		{Source: right.Name, Grouping: topology.Fields(spec.RightKeys()...)},
	}
}

// DescriptorID derives the deterministic topology ID for a query text and
// the options that shape its topology.
func DescriptorID(text string, opts Options) string {
	name := text +
		"\x00" + opts.InputFeed +
		"\x00" + strconv.Itoa(opts.Arity) +
		"\x00" + strconv.FormatBool(opts.EnableRetraction)
	return uuid.NewSHA1(topologyNamespace, []byte(name)).String()
}
