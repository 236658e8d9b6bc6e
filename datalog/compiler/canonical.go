package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// CanonicalTerms renders a clause independently of variable spelling.
// Constants appear in canonical form, blanks as "_", and each variable as
// "?k" where k is the position of its first occurrence in the clause:
//
//	[?x :knows ?y] -> [?0 :knows ?2]
//	[?x :knows ?x] -> [?0 :knows ?0]
func CanonicalTerms(c *query.Clause) ([]string, error) {
	if c == nil {
		return nil, fmt.Errorf("nil clause")
	}

	terms := make([]string, len(c.Terms))
	first := make(map[query.Symbol]int, len(c.Terms))
	for i, term := range c.Terms {
		switch t := term.(type) {
		case nil:
			return nil, fmt.Errorf("term %d is missing", i)
		case query.Variable:
			pos, seen := first[t.Name]
			if !seen {
				pos = i
				first[t.Name] = i
			}
			terms[i] = "?" + strconv.Itoa(pos)
		case query.Blank:
			terms[i] = "_"
		case query.Constant:
			s, err := query.FormatValue(t.Value)
			if err != nil {
				return nil, fmt.Errorf("term %d: %w", i, err)
			}
			terms[i] = s
		default:
			return nil, fmt.Errorf("term %d has unsupported type %T", i, term)
		}
	}
	return terms, nil
}

// FilterName joins canonical terms into a filter operator name.
func FilterName(terms []string) string {
	return "[" + strings.Join(terms, " ") + "]"
}

// JoinName names a join from its two sides, in formation order, and the
// positions it matches on. A cross join renders "on []".
func JoinName(left, right string, keys []topology.KeyPair) string {
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%d=%d", k.Left, k.Right)
	}
	return fmt.Sprintf("join(%s, %s) on [%s]", left, right, strings.Join(pairs, " "))
}
