package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

func TestRouteFields(t *testing.T) {
	g := topology.Fields(1)
	a := query.Tuple{query.Ident("x"), int64(7), "left"}
	b := query.Tuple{"other", 7, query.Keyword(":k")}

	// Equal key values land on the same instance, whatever else differs
	for _, p := range []int{2, 5, 16} {
		ra, err := route(g, a, p)
		require.NoError(t, err)
		rb, err := route(topology.Fields(0), query.Tuple{b[1]}, p)
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
		require.Len(t, ra, 1)
		assert.Less(t, ra[0], p)
	}
}

func TestRouteBroadcastAndShuffle(t *testing.T) {
	tuple := query.Tuple{query.Ident("x"), int64(1)}

	all, err := route(topology.Broadcast(), tuple, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, all)

	first, err := route(topology.Shuffle(), tuple, 8)
	require.NoError(t, err)
	second, err := route(topology.Shuffle(), tuple, 8)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	single, err := route(topology.Broadcast(), tuple, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, single)

	_, err = route(topology.Fields(4), tuple, 2)
	assert.Error(t, err)
}

func TestTupleKey(t *testing.T) {
	k1, err := tupleKey(query.Tuple{int64(1), "a", query.Keyword(":a")}, []int{0, 2})
	require.NoError(t, err)
	k2, err := tupleKey(query.Tuple{1, "b", query.Keyword(":a")}, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	s, _ := fullKey(query.Tuple{"1"})
	n, _ := fullKey(query.Tuple{int64(1)})
	assert.NotEqual(t, s, n)

	_, err = fullKey(query.Tuple{nil})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestFilterMatch(t *testing.T) {
	op := &topology.Operator{
		Name:    "[?0 :knows ?0]",
		Kind:    topology.KindFilter,
		Terms:   []string{"?0", ":knows", "?0"},
		Outputs: []int{0, 0},
	}
	f, err := newFilter(op)
	require.NoError(t, err)

	out, err := f.match(query.Tuple{query.Ident("d"), query.Keyword(":knows"), query.Ident("d")})
	require.NoError(t, err)
	assert.Equal(t, query.Tuple{query.Ident("d"), query.Ident("d")}, out)

	out, err = f.match(query.Tuple{query.Ident("d"), query.Keyword(":knows"), query.Ident("e")})
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = f.match(query.Tuple{query.Ident("d"), query.Keyword(":likes"), query.Ident("d")})
	require.NoError(t, err)
	assert.Nil(t, out)

	// Arity mismatch never matches
	out, err = f.match(query.Tuple{query.Ident("d"), query.Keyword(":knows"), query.Ident("d"), int64(1)})
	require.NoError(t, err)
	assert.Nil(t, out)

	blank, err := newFilter(&topology.Operator{Name: "b", Terms: []string{"_", ":age", "?2"}, Outputs: []int{0}})
	require.NoError(t, err)
	out, err = blank.match(query.Tuple{"anything", query.Keyword(":age"), 3.5})
	require.NoError(t, err)
	assert.Equal(t, query.Tuple{3.5}, out)

	_, err = newFilter(&topology.Operator{Name: "bad", Terms: []string{"?2", ":p", "?0"}})
	assert.Error(t, err)
}

func TestWorkerPool(t *testing.T) {
	pool := NewWorkerPool(3)
	results := make([]int, 50)
	err := pool.Execute(context.Background(), len(results), func(_ context.Context, i int) error {
		results[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}
}

func TestWorkerPoolReportsLowestError(t *testing.T) {
	boom := errors.New("boom")
	err := NewWorkerPool(0).Execute(context.Background(), 10, func(_ context.Context, i int) error {
		if i >= 4 {
			return fmt.Errorf("job %d: %w", i, boom)
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "job 4: boom", err.Error())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewWorkerPool(2).Execute(ctx, 3, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
