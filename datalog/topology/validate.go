package topology

import (
	"errors"
	"fmt"
)

// ErrInvalidTopology is wrapped by every Validate failure.
var ErrInvalidTopology = errors.New("invalid topology")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTopology, fmt.Sprintf(format, args...))
}

// Validate checks the structural contract an execution engine relies on:
// operators in dependency order, joins with two aligned upstreams, and a
// terminal fed by the root.
func (d *Descriptor) Validate() error {
	if d.Input == "" {
		return invalid("missing input feed")
	}

	defined := make(map[string]*Operator, len(d.Operators))
	for i := range d.Operators {
		op := &d.Operators[i]
		if op.Name == "" {
			return invalid("operator %d has no name", i)
		}
		if _, dup := defined[op.Name]; dup {
			return invalid("duplicate operator %s", op.Name)
		}

		var err error
		switch op.Kind {
		case KindFilter:
			err = d.validateFilter(op)
		case KindJoin:
			err = validateJoin(op, defined)
		default:
			err = invalid("operator %s has unknown kind %v", op.Name, op.Kind)
		}
		if err != nil {
			return err
		}
		defined[op.Name] = op
	}

	if len(d.Operators) == 0 {
		if d.Root != "" || d.Terminal != nil {
			return invalid("root without operators")
		}
		return nil
	}
	if d.Root != d.Operators[len(d.Operators)-1].Name {
		return invalid("root %q is not the last operator", d.Root)
	}

	if t := d.Terminal; t != nil {
		root := defined[d.Root]
		if t.Source != d.Root {
			return invalid("terminal fed by %q, root is %q", t.Source, d.Root)
		}
		if len(t.Projection) != len(t.Variables) {
			return invalid("terminal projects %d positions for %d variables", len(t.Projection), len(t.Variables))
		}
		for _, p := range t.Projection {
			if p < 0 || p >= root.Arity() {
				return invalid("terminal projection %d out of range for arity %d", p, root.Arity())
			}
		}
	}
	return nil
}

func (d *Descriptor) validateFilter(op *Operator) error {
	if len(op.Terms) == 0 || op.Join != nil {
		return invalid("filter %s must have terms and no join spec", op.Name)
	}
	if len(op.Upstreams) == 0 || len(op.Upstreams) > 2 {
		return invalid("filter %s has %d upstreams", op.Name, len(op.Upstreams))
	}
	if up := op.Upstreams[0]; up.Source != d.Input || up.Grouping.Type != GroupShuffle {
		return invalid("filter %s must read %s with shuffle grouping", op.Name, d.Input)
	}
	if len(op.Upstreams) == 2 {
		if d.Terminal == nil || d.Terminal.Feedback == "" {
			return invalid("filter %s reads a feedback feed but the terminal has none", op.Name)
		}
		if up := op.Upstreams[1]; up.Source != d.Terminal.Feedback || up.Grouping.Type != GroupBroadcast {
			return invalid("filter %s must read %s with broadcast grouping", op.Name, d.Terminal.Feedback)
		}
	}
	vars := 0
	for _, t := range op.Terms {
		if len(t) > 1 && t[0] == '?' {
			vars++
		}
	}
	if vars != op.Arity() {
		return invalid("filter %s has %d variable terms but %d outputs", op.Name, vars, op.Arity())
	}
	return nil
}

func validateJoin(op *Operator, defined map[string]*Operator) error {
	j := op.Join
	if j == nil || len(op.Terms) != 0 {
		return invalid("join %s must have a join spec and no terms", op.Name)
	}
	if len(op.Upstreams) != 2 {
		return invalid("join %s has %d upstreams", op.Name, len(op.Upstreams))
	}
	left, ok := defined[op.Upstreams[0].Source]
	if !ok {
		return invalid("join %s reads %q before it is defined", op.Name, op.Upstreams[0].Source)
	}
	right, ok := defined[op.Upstreams[1].Source]
	if !ok {
		return invalid("join %s reads %q before it is defined", op.Name, op.Upstreams[1].Source)
	}

	if len(j.LeftMatch) != left.Arity() || len(j.RightMatch) != right.Arity() {
		return invalid("join %s match arrays do not fit its inputs", op.Name)
	}
	if op.Arity() != left.Arity()+right.Arity() || len(j.Template) != op.Arity() {
		return invalid("join %s outputs %d values from %d+%d inputs", op.Name, op.Arity(), left.Arity(), right.Arity())
	}
	for _, k := range j.Keys {
		if k.Left < 0 || k.Left >= left.Arity() || k.Right < 0 || k.Right >= right.Arity() {
			return invalid("join %s key %v out of range", op.Name, k)
		}
	}

	lg, rg := op.Upstreams[0].Grouping, op.Upstreams[1].Grouping
	if j.IsCross() {
		if lg.Type != GroupBroadcast || rg.Type != GroupFields || len(rg.Keys) != right.Arity() {
			return invalid("cross join %s must broadcast left and partition right on every position", op.Name)
		}
		return nil
	}
	if lg.Type != GroupFields || rg.Type != GroupFields {
		return invalid("join %s must use fields grouping on both sides", op.Name)
	}
	if !equalInts(lg.Keys, j.LeftKeys()) || !equalInts(rg.Keys, j.RightKeys()) {
		return invalid("join %s grouping keys %v/%v do not match join keys %v", op.Name, lg.Keys, rg.Keys, j.Keys)
	}
	return nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
