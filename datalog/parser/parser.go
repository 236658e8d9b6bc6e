// Package parser turns EDN query text into query.Pattern values and fact
// files into tuples. It sits in front of the compiler and is not needed to
// use it: callers may build patterns directly.
package parser

import (
	"fmt"

	"github.com/wbrown/janus-dataflow/datalog/edn"
	"github.com/wbrown/janus-dataflow/datalog/query"
)

// ParseQuery parses a query of the form
//
//	[:find ?a ?n
//	 :where [?a :type Driver]
//	        [?a :age ?n]
//	        (optional [?a :license ?l])]
func ParseQuery(input string) (*query.Pattern, error) {
	node, err := edn.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("EDN parse error: %w", err)
	}
	if node.Type != edn.NodeVector {
		return nil, fmt.Errorf("query must be a vector, got %v", node.Type)
	}
	return parseQueryVector(node)
}

func parseQueryVector(node *edn.Node) (*query.Pattern, error) {
	p := &query.Pattern{}
	seenWhere := false

	i := 0
	for i < len(node.Nodes) {
		kw := node.Nodes[i]
		if kw.Type != edn.NodeKeyword {
			return nil, fmt.Errorf("expected keyword at %s, got %v", kw.Pos, kw.Type)
		}
		i++

		switch kw.Value {
		case ":find":
			for i < len(node.Nodes) && node.Nodes[i].Type != edn.NodeKeyword {
				elem := node.Nodes[i]
				sym := query.Symbol(elem.Value)
				if elem.Type != edn.NodeSymbol || !sym.IsVariable() {
					return nil, fmt.Errorf("find clause must contain variables, got %s at %s", elem.String(), elem.Pos)
				}
				p.Find = append(p.Find, sym)
				i++
			}

		case ":where":
			seenWhere = true
			for i < len(node.Nodes) && node.Nodes[i].Type != edn.NodeKeyword {
				if err := parseWhereElement(p, &node.Nodes[i]); err != nil {
					return nil, err
				}
				i++
			}

		default:
			return nil, fmt.Errorf("unknown query clause: %s", kw.Value)
		}
	}

	if !seenWhere || (len(p.Where) == 0 && len(p.Nested) == 0) {
		return nil, fmt.Errorf("query must have at least one where clause")
	}
	return p, nil
}

// parseWhereElement adds a clause vector or a nested (optional ...) /
// (not ...) block to p.
func parseWhereElement(p *query.Pattern, node *edn.Node) error {
	switch node.Type {
	case edn.NodeVector:
		clause, err := parseClause(node)
		if err != nil {
			return fmt.Errorf("error parsing clause at %s: %w", node.Pos, err)
		}
		p.Where = append(p.Where, clause)
		return nil

	case edn.NodeList:
		if len(node.Nodes) < 2 || node.Nodes[0].Type != edn.NodeSymbol {
			return fmt.Errorf("nested pattern at %s must be (optional ...) or (not ...)", node.Pos)
		}
		kind := node.Nodes[0].Value
		if kind != "optional" && kind != "not" {
			return fmt.Errorf("unknown nested pattern %q at %s", kind, node.Pos)
		}
		nested := &query.Pattern{Kind: kind}
		for j := 1; j < len(node.Nodes); j++ {
			if err := parseWhereElement(nested, &node.Nodes[j]); err != nil {
				return err
			}
		}
		p.Nested = append(p.Nested, nested)
		return nil

	default:
		return fmt.Errorf("expected clause vector or nested pattern at %s, got %v", node.Pos, node.Type)
	}
}

// parseClause converts every element of a clause vector into a term. Arity
// is not checked here; the compiler reports clauses of the wrong size.
func parseClause(node *edn.Node) (*query.Clause, error) {
	if len(node.Nodes) == 0 {
		return nil, fmt.Errorf("empty clause")
	}
	terms := make([]query.Term, len(node.Nodes))
	for i := range node.Nodes {
		term, err := parseTerm(&node.Nodes[i])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		terms[i] = term
	}
	return query.NewClause(terms...), nil
}

func parseTerm(node *edn.Node) (query.Term, error) {
	if node.Type == edn.NodeSymbol {
		switch {
		case node.Value == "_":
			return query.Blank{}, nil
		case query.Symbol(node.Value).IsVariable():
			return query.Variable{Name: query.Symbol(node.Value)}, nil
		}
	}
	v, err := parseValue(node)
	if err != nil {
		return nil, err
	}
	return query.Constant{Value: v}, nil
}

// parseValue converts an atom into a constant value.
func parseValue(node *edn.Node) (interface{}, error) {
	switch node.Type {
	case edn.NodeKeyword:
		return query.Keyword(node.Value), nil
	case edn.NodeSymbol:
		if node.Value == "?" || node.Value[0] == '?' {
			return nil, fmt.Errorf("invalid variable %q", node.Value)
		}
		return query.Ident(node.Value), nil
	case edn.NodeString:
		return node.Value, nil
	case edn.NodeInt:
		return node.AsInt()
	case edn.NodeFloat:
		return node.AsFloat()
	case edn.NodeBool:
		return node.Value == "true", nil
	default:
		return nil, fmt.Errorf("unsupported value %s of type %v", node.String(), node.Type)
	}
}

// ParseFacts parses a sequence of fact vectors ([e a v] or [e a v t]).
// Variables and blanks are not allowed in facts.
func ParseFacts(input string) ([]query.Tuple, error) {
	nodes, err := edn.NewParser(edn.NewLexer(input)).ParseAll()
	if err != nil {
		return nil, fmt.Errorf("EDN parse error: %w", err)
	}

	facts := make([]query.Tuple, 0, len(nodes))
	for _, node := range nodes {
		if node.Type != edn.NodeVector {
			return nil, fmt.Errorf("fact at %s must be a vector, got %v", node.Pos, node.Type)
		}
		tuple := make(query.Tuple, len(node.Nodes))
		for i := range node.Nodes {
			elem := &node.Nodes[i]
			if elem.Type == edn.NodeSymbol && (elem.Value == "_" || query.Symbol(elem.Value).IsVariable()) {
				return nil, fmt.Errorf("fact at %s contains variable %s", node.Pos, elem.Value)
			}
			v, err := parseValue(elem)
			if err != nil {
				return nil, fmt.Errorf("fact at %s: %w", node.Pos, err)
			}
			tuple[i] = v
		}
		facts = append(facts, tuple)
	}
	return facts, nil
}
