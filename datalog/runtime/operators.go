package runtime

import (
	"fmt"
	"strconv"

	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

type termKind uint8

const (
	termBlank termKind = iota
	termVariable
	termConstant
)

// termMatcher is one compiled filter term.
type termMatcher struct {
	kind     termKind
	first    int    // variable: position of first occurrence
	constant string // constant: canonical form
}

// filter evaluates one clause shape against raw facts. Filters are
// stateless, so every instance shares one filter.
type filter struct {
	terms []termMatcher
	arity int
}

func newFilter(op *topology.Operator) (*filter, error) {
	f := &filter{terms: make([]termMatcher, len(op.Terms)), arity: op.Arity()}
	for i, term := range op.Terms {
		switch {
		case term == "_":
			f.terms[i] = termMatcher{kind: termBlank}
		case len(term) > 1 && term[0] == '?':
			pos, err := strconv.Atoi(term[1:])
			if err != nil || pos < 0 || pos > i {
				return nil, fmt.Errorf("filter %s: bad variable token %q", op.Name, term)
			}
			f.terms[i] = termMatcher{kind: termVariable, first: pos}
		default:
			f.terms[i] = termMatcher{kind: termConstant, constant: term}
		}
	}
	return f, nil
}

// match returns the output tuple for fact, or nil when it does not match.
// Facts of a different arity never match.
func (f *filter) match(fact query.Tuple) (query.Tuple, error) {
	if len(fact) != len(f.terms) {
		return nil, nil
	}

	out := make(query.Tuple, 0, f.arity)
	for i, m := range f.terms {
		switch m.kind {
		case termBlank:
		case termVariable:
			if m.first != i && !query.ValuesEqual(fact[i], fact[m.first]) {
				return nil, nil
			}
			out = append(out, fact[i])
		case termConstant:
			s, err := query.FormatValue(fact[i])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
			}
			if s != m.constant {
				return nil, nil
			}
		}
	}
	return out, nil
}

// entry is a stored tuple with its accumulated weight.
type entry struct {
	tuple  query.Tuple
	weight int
}

// bucket holds the tuples of one join key, by canonical tuple.
type bucket map[string]*entry

// joinInstance is the state of one join instance: per-key left and right
// multisets.
type joinInstance struct {
	sides [2]map[string]bucket
}

func newJoinInstance() *joinInstance {
	return &joinInstance{sides: [2]map[string]bucket{
		make(map[string]bucket),
		make(map[string]bucket),
	}}
}

// join is a symmetric hash join with signed weights. A delta on one side
// probes the other side's current state and is then applied to its own, so
// retractions cancel the outputs their insertions produced.
type join struct {
	spec      *topology.JoinSpec
	keys      [2][]int
	instances []*joinInstance
}

func newJoin(op *topology.Operator, parallelism int) *join {
	j := &join{
		spec:      op.Join,
		keys:      [2][]int{op.Join.LeftKeys(), op.Join.RightKeys()},
		instances: make([]*joinInstance, parallelism),
	}
	for i := range j.instances {
		j.instances[i] = newJoinInstance()
	}
	return j
}

func (j *join) receive(instance int, side topology.Side, d Delta) ([]Delta, error) {
	key, err := tupleKey(d.Tuple, j.keys[side])
	if err != nil {
		return nil, err
	}
	id, err := fullKey(d.Tuple)
	if err != nil {
		return nil, err
	}

	inst := j.instances[instance]
	other := inst.sides[1-side][key]

	var out []Delta
	for _, e := range other {
		var left, right query.Tuple
		if side == topology.Left {
			left, right = d.Tuple, e.tuple
		} else {
			left, right = e.tuple, d.Tuple
		}
		out = append(out, Delta{Tuple: j.combine(left, right), Weight: d.Weight * e.weight})
	}

	own := inst.sides[side]
	b, ok := own[key]
	if !ok {
		b = make(bucket)
		own[key] = b
	}
	if e, ok := b[id]; ok {
		e.weight += d.Weight
		if e.weight == 0 {
			delete(b, id)
			if len(b) == 0 {
				delete(own, key)
			}
		}
	} else {
		b[id] = &entry{tuple: d.Tuple, weight: d.Weight}
	}
	return out, nil
}

func (j *join) combine(left, right query.Tuple) query.Tuple {
	out := make(query.Tuple, len(j.spec.Template))
	for i, src := range j.spec.Template {
		if src.Side == topology.Left {
			out[i] = left[src.Pos]
		} else {
			out[i] = right[src.Pos]
		}
	}
	return out
}

// size returns the number of stored entries across instances.
func (j *join) size() int {
	n := 0
	for _, inst := range j.instances {
		for _, side := range inst.sides {
			for _, b := range side {
				n += len(b)
			}
		}
	}
	return n
}
