package compiler

import (
	"fmt"

	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// CompileFilters turns every Where clause into a filter reference on the
// active list. Structurally identical clauses share one Filter node.
// Malformed clauses are skipped with a diagnostic.
func (ctx *Context) CompileFilters() error {
	if err := ctx.enter("CompileFilters", stateInitialized); err != nil {
		return err
	}

	for i, clause := range ctx.pattern.Where {
		ref, err := ctx.compileFilter(i, clause)
		if err != nil {
			if IsFatal(err) {
				return ctx.fail(err)
			}
			ctx.skipClause(i, clause, err)
			continue
		}
		ctx.active = append(ctx.active, ref)
	}

	if len(ctx.active) == 0 {
		return ctx.fail(fmt.Errorf("%w: %d clauses, none compiled", ErrEmptyPattern, len(ctx.pattern.Where)))
	}
	ctx.state = stateFiltered
	return nil
}

func (ctx *Context) compileFilter(index int, clause *query.Clause) (activeRef, error) {
	if clause == nil {
		return activeRef{}, fmt.Errorf("%w: nil clause", ErrMalformedClause)
	}
	if clause.Arity() != ctx.opts.Arity {
		return activeRef{}, fmt.Errorf("%w: %d terms, expected %d", ErrMalformedClause, clause.Arity(), ctx.opts.Arity)
	}

	terms, err := CanonicalTerms(clause)
	if err != nil {
		return activeRef{}, fmt.Errorf("%w: %v", ErrMalformedClause, err)
	}

	vars := make([]int, 0, len(clause.Terms))
	for _, term := range clause.Terms {
		v, ok := term.(query.Variable)
		if !ok {
			continue
		}
		slot, ok := ctx.bindings.Slot(v.Name)
		if !ok {
			return activeRef{}, fmt.Errorf("%w: %s in clause %d", ErrUnboundVariable, v.Name, index)
		}
		vars = append(vars, slot)
	}

	name := FilterName(terms)
	event := annotations.FilterReused
	node, ok := ctx.registry[name]
	if !ok {
		node = &Node{
			Name:            name,
			Kind:            topology.KindFilter,
			OutputVariables: vars,
			Terms:           terms,
			Clause:          index,
		}
		ctx.register(node)
		event = annotations.FilterCreated
	}
	node.Uses++

	ctx.collector.AddEvent(event, map[string]interface{}{
		"name":         name,
		"vars":         vars,
		"clause.index": index,
	})
	return activeRef{name: name, vars: vars}, nil
}

func (ctx *Context) skipClause(index int, clause *query.Clause, err error) {
	text := "<nil>"
	if clause != nil {
		text = clause.String()
	}
	ctx.diagnostics = append(ctx.diagnostics, Diagnostic{
		Kind:     DiagMalformedClause,
		Severity: SeverityError,
		Clause:   index,
		Text:     text,
		Err:      err,
	})
	ctx.collector.AddEvent(annotations.ClauseSkipped, map[string]interface{}{
		"clause.index": index,
		"clause":       text,
		"error":        err.Error(),
	})
}
