package compiler

import (
	"errors"
	"fmt"
	"time"

	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

type contextState uint8

const (
	stateNew contextState = iota
	stateInitialized
	stateFiltered
	stateJoined
	stateFinished
	stateFailed
)

func (s contextState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateInitialized:
		return "initialized"
	case stateFiltered:
		return "filtered"
	case stateJoined:
		return "joined"
	case stateFinished:
		return "finished"
	default:
		return "failed"
	}
}

// Context is the single-use state of one compilation: bindings, the operator
// registry and the active list. Steps must run in order:
//
//	ctx := compiler.NewContext(pattern, opts)
//	ctx.InitTopology()
//	ctx.CompileFilters()
//	ctx.CompileJoins()
//	result, err := ctx.FinishQuery()
//
// A Context must not be shared between goroutines.
type Context struct {
	pattern *query.Pattern
	opts    Options

	state     contextState
	start     time.Time
	collector *annotations.Collector

	bindings *BindingVector
	terminal *topology.Terminal

	registry map[string]*Node
	order    []*Node
	active   []activeRef
	root     *activeRef

	joinSteps   int
	diagnostics []Diagnostic
}

// NewContext prepares the compilation of one pattern.
func NewContext(p *query.Pattern, opts Options) *Context {
	return &Context{
		pattern:   p,
		opts:      opts,
		collector: annotations.NewCollector(opts.Handler),
		registry:  make(map[string]*Node),
	}
}

func (ctx *Context) enter(step string, want contextState) error {
	if ctx.state != want {
		return fmt.Errorf("%w: %s called in state %s", ErrContextState, step, ctx.state)
	}
	return nil
}

// fail moves the context to its terminal failed state.
func (ctx *Context) fail(err error) error {
	ctx.state = stateFailed
	ctx.collector.AddTiming(annotations.CompileComplete, ctx.start, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
	return err
}

// InitTopology builds the binding vector and the terminal sink.
func (ctx *Context) InitTopology() error {
	if err := ctx.enter("InitTopology", stateNew); err != nil {
		return err
	}
	ctx.start = time.Now()

	if err := ctx.opts.validate(); err != nil {
		return ctx.fail(err)
	}
	if ctx.pattern == nil {
		return ctx.fail(fmt.Errorf("%w: nil pattern", ErrContractViolation))
	}
	ctx.collector.AddEvent(annotations.CompileBegin, map[string]interface{}{
		"query": ctx.pattern.String(),
	})

	bindings, err := BuildBindings(ctx.pattern)
	if err != nil {
		return ctx.fail(err)
	}
	ctx.bindings = bindings
	ctx.collector.AddEvent(annotations.BindingsAssigned, map[string]interface{}{
		"bindings": bindings.String(),
	})

	if ctx.opts.Terminal != nil {
		terminal, err := ctx.opts.Terminal(ctx.pattern, bindings)
		switch {
		case err != nil:
			if errors.Is(err, ErrContractViolation) {
				return ctx.fail(err)
			}
			if err := ctx.missingTerminal(err); err != nil {
				return ctx.fail(err)
			}
		case terminal == nil:
			if err := ctx.missingTerminal(fmt.Errorf("terminal builder produced no sink")); err != nil {
				return ctx.fail(err)
			}
		default:
			ctx.terminal = terminal
		}
	} else if err := ctx.missingTerminal(fmt.Errorf("no terminal builder configured")); err != nil {
		return ctx.fail(err)
	}

	ctx.state = stateInitialized
	return nil
}

// missingTerminal applies the terminal policy.
func (ctx *Context) missingTerminal(reason error) error {
	ctx.terminal = nil
	ctx.collector.AddEvent(annotations.TerminalMissing, map[string]interface{}{
		"reason": reason.Error(),
		"policy": ctx.opts.TerminalPolicy.String(),
	})
	if ctx.opts.TerminalPolicy == TerminalRequired {
		return fmt.Errorf("%w: %v", ErrMissingTerminal, reason)
	}
	ctx.diagnostics = append(ctx.diagnostics, Diagnostic{
		Kind:     DiagMissingTerminal,
		Severity: SeverityWarning,
		Clause:   -1,
		Err:      reason,
	})
	return nil
}

func (ctx *Context) register(n *Node) {
	ctx.registry[n.Name] = n
	ctx.order = append(ctx.order, n)
}

// Bindings returns the binding vector once InitTopology succeeded.
func (ctx *Context) Bindings() *BindingVector {
	return ctx.bindings
}

// Node returns a registered node by canonical name.
func (ctx *Context) Node(name string) (*Node, bool) {
	n, ok := ctx.registry[name]
	return n, ok
}

// Diagnostics returns the diagnostics recorded so far.
func (ctx *Context) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(ctx.diagnostics))
	copy(out, ctx.diagnostics)
	return out
}

// Active returns the names currently in the active list.
func (ctx *Context) Active() []string {
	names := make([]string, len(ctx.active))
	for i, ref := range ctx.active {
		names[i] = ref.name
	}
	return names
}
