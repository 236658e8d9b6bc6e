package runtime

import (
	"sort"

	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// conflictSet accumulates projected root tuples with multiplicities.
type conflictSet struct {
	projection []int
	rows       map[string]*Row
}

func newConflictSet(t *topology.Terminal) *conflictSet {
	return &conflictSet{
		projection: t.Projection,
		rows:       make(map[string]*Row),
	}
}

func (c *conflictSet) apply(d Delta) error {
	values := make(query.Tuple, len(c.projection))
	for i, pos := range c.projection {
		values[i] = d.Tuple[pos]
	}
	key, err := fullKey(values)
	if err != nil {
		return err
	}

	row, ok := c.rows[key]
	if !ok {
		row = &Row{Values: values}
		c.rows[key] = row
	}
	row.Count += d.Weight
	if row.Count == 0 {
		delete(c.rows, key)
	}
	return nil
}

// results returns the rows sorted by canonical key.
func (c *conflictSet) results() []Row {
	keys := make([]string, 0, len(c.rows))
	for k := range c.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]Row, len(keys))
	for i, k := range keys {
		r := c.rows[k]
		rows[i] = Row{Values: append(query.Tuple(nil), r.Values...), Count: r.Count}
	}
	return rows
}
