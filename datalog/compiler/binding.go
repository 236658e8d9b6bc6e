package compiler

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-dataflow/datalog/query"
)

// BindingVector assigns every variable of a pattern a dense slot index,
// starting at 0, in document order.
type BindingVector struct {
	names []query.Symbol
	slots map[query.Symbol]int
}

// BuildBindings walks the pattern once: Where clauses in order with their
// terms left to right, then nested patterns depth-first, then Find.
// A projected variable that no clause mentions is ErrUnboundVariable.
func BuildBindings(p *query.Pattern) (*BindingVector, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil pattern", ErrContractViolation)
	}

	b := &BindingVector{slots: make(map[query.Symbol]int)}
	constants := make(map[query.Symbol]bool)
	if err := b.walk(p, constants); err != nil {
		return nil, err
	}

	for _, sym := range p.Find {
		if !sym.IsVariable() {
			return nil, fmt.Errorf("%w: %q cannot be projected", ErrIncompatibleRole, sym)
		}
		if _, ok := b.slots[sym]; !ok {
			return nil, fmt.Errorf("%w: %s is projected but never bound", ErrUnboundVariable, sym)
		}
	}
	return b, nil
}

func (b *BindingVector) walk(p *query.Pattern, constants map[query.Symbol]bool) error {
	for _, clause := range p.Where {
		if clause == nil {
			continue
		}
		for _, term := range clause.Terms {
			switch t := term.(type) {
			case query.Variable:
				if !t.Name.IsVariable() {
					return fmt.Errorf("%w: %q is not a variable name", ErrIncompatibleRole, t.Name)
				}
				if constants[t.Name] {
					return fmt.Errorf("%w: %s is used as a constant and a variable", ErrIncompatibleRole, t.Name)
				}
				b.bind(t.Name)
			case query.Constant:
				// A constant spelled like a variable is a parser bug.
				if sym, ok := constantSymbol(t.Value); ok && sym.IsVariable() {
					if _, bound := b.slots[sym]; bound {
						return fmt.Errorf("%w: %s is used as a variable and a constant", ErrIncompatibleRole, sym)
					}
					constants[sym] = true
				}
			}
		}
	}
	for _, nested := range p.Nested {
		if nested == nil {
			continue
		}
		if err := b.walk(nested, constants); err != nil {
			return err
		}
	}
	return nil
}

func constantSymbol(v interface{}) (query.Symbol, bool) {
	switch s := v.(type) {
	case query.Symbol:
		return s, true
	case query.Ident:
		return query.Symbol(s), true
	default:
		return "", false
	}
}

func (b *BindingVector) bind(sym query.Symbol) {
	if _, ok := b.slots[sym]; ok {
		return
	}
	b.slots[sym] = len(b.names)
	b.names = append(b.names, sym)
}

// Slot returns the slot of a variable.
func (b *BindingVector) Slot(sym query.Symbol) (int, bool) {
	slot, ok := b.slots[sym]
	return slot, ok
}

// Len returns the number of slots
func (b *BindingVector) Len() int {
	return len(b.names)
}

// Name returns the variable bound to slot.
func (b *BindingVector) Name(slot int) query.Symbol {
	if slot < 0 || slot >= len(b.names) {
		return ""
	}
	return b.names[slot]
}

// Names returns the variables in slot order.
func (b *BindingVector) Names() []query.Symbol {
	names := make([]query.Symbol, len(b.names))
	copy(names, b.names)
	return names
}

// Strings returns the variable names in slot order.
func (b *BindingVector) Strings() []string {
	names := make([]string, len(b.names))
	for i, n := range b.names {
		names[i] = n.String()
	}
	return names
}

func (b *BindingVector) String() string {
	parts := make([]string, len(b.names))
	for i, n := range b.names {
		parts[i] = fmt.Sprintf("%s:%d", n, i)
	}
	return "{" + strings.Join(parts, " ") + "}"
}
