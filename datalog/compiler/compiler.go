// Package compiler turns a conjunctive graph-pattern query into a dataflow
// topology of Filter and Join operators.
//
// Compilation is a synchronous, deterministic transform:
//
//  1. Bindings: every variable gets a dense slot in document order.
//  2. Filters: each clause becomes a Filter node named by its canonical
//     form, so structurally identical clauses share one node.
//  3. Joins: the active list is folded greedily, joining the first entry
//     with its first partner, or cross joining it with the next entry when
//     it has none.
//  4. Wiring: nodes reachable from the root are emitted in dependency order
//     with their grouping contracts, and the root feeds the terminal.
//
// Malformed clauses are skipped and reported as diagnostics; contract
// violations abort compilation.
package compiler

import (
	"errors"
	"slices"

	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// Result is the outcome of compiling one pattern. The topology may be
// partial when Diagnostics report skipped clauses.
type Result struct {
	Topology    *topology.Descriptor
	Bindings    *BindingVector
	Diagnostics []Diagnostic

	// JoinSteps counts join transitions; always one less than the number of
	// compiled clauses.
	JoinSteps int

	// Nodes lists the registry in creation order.
	Nodes []*Node
}

// HasErrors reports whether any clause was skipped.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// clone copies everything a caller could modify. The binding vector has no
// mutators and is shared.
func (r *Result) clone() *Result {
	out := *r
	out.Topology = r.Topology.Clone()
	out.Diagnostics = slices.Clone(r.Diagnostics)
	out.Nodes = make([]*Node, len(r.Nodes))
	for i, n := range r.Nodes {
		node := *n
		node.OutputVariables = slices.Clone(n.OutputVariables)
		node.Terms = slices.Clone(n.Terms)
		node.Spec = n.Spec.Clone()
		out.Nodes[i] = &node
	}
	return &out
}

// Node returns a node by canonical name
func (r *Result) Node(name string) (*Node, bool) {
	for _, n := range r.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Count returns the number of registered nodes of a kind.
func (r *Result) Count(kind topology.Kind) int {
	n := 0
	for _, node := range r.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

// Compiler compiles patterns with fixed options. It holds no per-query
// state, so one Compiler may serve many goroutines.
type Compiler struct {
	opts Options
}

// New creates a compiler
func New(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

// Options returns the compiler's options
func (c *Compiler) Options() Options {
	return c.opts
}

// Compile runs the full lifecycle on a fresh Context.
func (c *Compiler) Compile(p *query.Pattern) (*Result, error) {
	if p != nil {
		if cached, ok := c.opts.Cache.Get(p, c.opts); ok {
			annotations.NewCollector(c.opts.Handler).AddEvent(annotations.CompileCacheHit, map[string]interface{}{
				"id": cached.Topology.ID,
			})
			return cached, nil
		}
	}

	result, err := Compile(p, c.opts)
	if err != nil {
		return nil, err
	}
	c.opts.Cache.Set(p, c.opts, result)
	return result, nil
}

// Compile compiles a pattern without caching.
func Compile(p *query.Pattern, opts Options) (*Result, error) {
	ctx := NewContext(p, opts)
	if err := ctx.InitTopology(); err != nil {
		return nil, err
	}
	if err := ctx.CompileFilters(); err != nil {
		return nil, err
	}
	if err := ctx.CompileJoins(); err != nil {
		return nil, err
	}
	return ctx.FinishQuery()
}

// CompileAll compiles several patterns, stopping at the first fatal error.
func (c *Compiler) CompileAll(patterns []*query.Pattern) ([]*Result, error) {
	results := make([]*Result, 0, len(patterns))
	for _, p := range patterns {
		r, err := c.Compile(p)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// IsContractViolation reports whether err is a fatal contract violation.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}
