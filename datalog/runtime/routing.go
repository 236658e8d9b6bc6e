package runtime

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

const keySeparator = "\x1f"

// tupleKey renders the values at positions as a canonical string. Equal
// values give equal keys regardless of their Go type (int vs int64).
func tupleKey(t query.Tuple, positions []int) (string, error) {
	var sb strings.Builder
	for i, pos := range positions {
		if pos < 0 || pos >= len(t) {
			return "", fmt.Errorf("position %d out of range for tuple of %d values", pos, len(t))
		}
		s, err := query.FormatValue(t[pos])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		if i > 0 {
			sb.WriteString(keySeparator)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// fullKey renders every value of t.
func fullKey(t query.Tuple) (string, error) {
	positions := make([]int, len(t))
	for i := range positions {
		positions[i] = i
	}
	return tupleKey(t, positions)
}

// route selects the instances of a consumer that receive t.
func route(g topology.Grouping, t query.Tuple, parallelism int) ([]int, error) {
	if parallelism <= 1 {
		return []int{0}, nil
	}

	var key string
	var err error
	switch g.Type {
	case topology.GroupBroadcast:
		all := make([]int, parallelism)
		for i := range all {
			all[i] = i
		}
		return all, nil
	case topology.GroupFields:
		key, err = tupleKey(t, g.Keys)
	default:
		key, err = fullKey(t)
	}
	if err != nil {
		return nil, err
	}
	return []int{int(xxhash.Sum64String(key) % uint64(parallelism))}, nil
}
