package query

import (
	"strings"
)

// Tuple represents a row of values flowing through a compiled topology.
// Raw input tuples are facts ([e a v] or [e a v t]); operator outputs carry
// the values of the operator's output variables.
type Tuple []interface{}

// Symbol represents a variable in a query (e.g., ?x, ?name)
type Symbol string

// IsVariable returns true if this is a variable symbol (starts with ?)
func (s Symbol) IsVariable() bool {
	return len(s) > 1 && s[0] == '?'
}

// String returns the string representation
func (s Symbol) String() string {
	return string(s)
}

// Term is one position of a clause: a constant, a variable or a blank.
type Term interface {
	IsVariable() bool
	IsBlank() bool
	String() string
}

// Variable represents a query variable (e.g., ?x)
type Variable struct {
	Name Symbol
}

func (v Variable) IsVariable() bool { return true }
func (v Variable) IsBlank() bool    { return false }
func (v Variable) String() string   { return v.Name.String() }

// Blank represents a blank/wildcard (_)
type Blank struct{}

func (b Blank) IsVariable() bool { return false }
func (b Blank) IsBlank() bool    { return true }
func (b Blank) String() string   { return "_" }

// Constant represents a concrete value in a clause. Value must be one of the
// types accepted by FormatValue.
type Constant struct {
	Value interface{}
}

func (c Constant) IsVariable() bool { return false }
func (c Constant) IsBlank() bool    { return false }
func (c Constant) String() string {
	s, err := FormatValue(c.Value)
	if err != nil {
		return "<invalid>"
	}
	return s
}

// Clause is one triple-like constraint, e.g. [?p :person/name ?name].
// Clauses are built once by the parser (or by callers) and never mutated.
type Clause struct {
	Terms []Term
}

// NewClause builds a clause from terms.
func NewClause(terms ...Term) *Clause {
	return &Clause{Terms: terms}
}

// Arity returns the number of terms.
func (c *Clause) Arity() int {
	if c == nil {
		return 0
	}
	return len(c.Terms)
}

// Symbols returns the distinct variables of the clause in term order.
func (c *Clause) Symbols() []Symbol {
	var symbols []Symbol
	seen := make(map[Symbol]bool, len(c.Terms))
	for _, t := range c.Terms {
		if v, ok := t.(Variable); ok && !seen[v.Name] {
			seen[v.Name] = true
			symbols = append(symbols, v.Name)
		}
	}
	return symbols
}

// String returns a string representation of the clause
func (c *Clause) String() string {
	if c == nil {
		return "<nil>"
	}
	parts := make([]string, len(c.Terms))
	for i, t := range c.Terms {
		if t == nil {
			parts[i] = "<nil>"
			continue
		}
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Pattern is a conjunctive graph-pattern query.
//
// Where holds the clauses that get compiled into operators. Nested holds
// sub-patterns (optional/negated blocks handled by other compiler stages);
// their variables still receive binding slots.
type Pattern struct {
	Find   []Symbol
	Where  []*Clause
	Nested []*Pattern
	Kind   string // "" for a top-level pattern, "optional" or "not" for nested ones
}

// String returns the query in EDN form.
func (p *Pattern) String() string {
	return p.formatWithIndent("")
}

func (p *Pattern) formatWithIndent(indent string) string {
	var sb strings.Builder
	if p.Kind != "" {
		sb.WriteString("(" + p.Kind)
		for _, c := range p.Where {
			sb.WriteString(" " + c.String())
		}
		for _, n := range p.Nested {
			if n != nil {
				sb.WriteString(" " + n.formatWithIndent(indent))
			}
		}
		sb.WriteString(")")
		return sb.String()
	}

	sb.WriteString("[:find")
	for _, s := range p.Find {
		sb.WriteString(" " + s.String())
	}
	sb.WriteString("\n" + indent + " :where")
	for _, c := range p.Where {
		sb.WriteString("\n" + indent + "   " + c.String())
	}
	for _, n := range p.Nested {
		if n != nil {
			sb.WriteString("\n" + indent + "   " + n.formatWithIndent(indent+"   "))
		}
	}
	sb.WriteString("]")
	return sb.String()
}
