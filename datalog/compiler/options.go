package compiler

import (
	"fmt"

	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// TerminalPolicy decides what happens when no terminal sink can be attached
// to the root operator.
type TerminalPolicy uint8

const (
	// TerminalOptional compiles a topology without observable output and
	// records a DiagMissingTerminal warning.
	TerminalOptional TerminalPolicy = iota
	// TerminalRequired fails compilation with ErrMissingTerminal.
	TerminalRequired
)

func (p TerminalPolicy) String() string {
	if p == TerminalRequired {
		return "required"
	}
	return "optional"
}

// ParseTerminalPolicy parses "optional" or "required".
func ParseTerminalPolicy(s string) (TerminalPolicy, error) {
	switch s {
	case "", "optional":
		return TerminalOptional, nil
	case "required":
		return TerminalRequired, nil
	default:
		return 0, fmt.Errorf("unknown terminal policy %q", s)
	}
}

// TerminalBuilder constructs the terminal sink for a pattern. It fills Name
// and Variables; the compiler sets Source, Projection and Feedback. A nil
// terminal with a nil error means the pattern has nothing to observe.
type TerminalBuilder func(p *query.Pattern, b *BindingVector) (*topology.Terminal, error)

// ConflictSetName is the name of the default terminal sink.
const ConflictSetName = "conflict-set"

// ConflictSetTerminal builds a conflict-set sink over the projected
// variables. Patterns without projected variables get no terminal.
func ConflictSetTerminal(p *query.Pattern, b *BindingVector) (*topology.Terminal, error) {
	if len(p.Find) == 0 {
		return nil, nil
	}
	vars := make([]string, len(p.Find))
	for i, sym := range p.Find {
		if _, ok := b.Slot(sym); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnboundVariable, sym)
		}
		vars[i] = sym.String()
	}
	return &topology.Terminal{Name: ConflictSetName, Variables: vars}, nil
}

// Options configures compilation
type Options struct {
	// Arity is the number of terms in every clause, 3 or 4.
	Arity int

	// InputFeed names the raw input stream all filters read.
	InputFeed string

	// EnableRetraction connects every filter to the terminal's feedback feed.
	EnableRetraction bool

	TerminalPolicy TerminalPolicy
	Terminal       TerminalBuilder

	// Handler receives compile events; nil disables annotations.
	Handler annotations.Handler

	// Cache, when set, memoizes results of Compiler.Compile.
	Cache *TopologyCache
}

// DefaultOptions returns options for triple clauses read from "input" with a
// conflict-set terminal.
func DefaultOptions() Options {
	return Options{
		Arity:          3,
		InputFeed:      "input",
		TerminalPolicy: TerminalOptional,
		Terminal:       ConflictSetTerminal,
	}
}

func (o Options) validate() error {
	if o.Arity != 3 && o.Arity != 4 {
		return fmt.Errorf("%w: clause arity must be 3 or 4, got %d", ErrContractViolation, o.Arity)
	}
	if o.InputFeed == "" {
		return fmt.Errorf("%w: input feed name is empty", ErrContractViolation)
	}
	return nil
}
