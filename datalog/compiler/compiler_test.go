package compiler

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/parser"
	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

func mustParse(t *testing.T, q string) *query.Pattern {
	t.Helper()
	p, err := parser.ParseQuery(q)
	require.NoError(t, err)
	return p
}

func mustCompile(t *testing.T, q string, opts Options) *Result {
	t.Helper()
	r, err := Compile(mustParse(t, q), opts)
	require.NoError(t, err)
	require.NoError(t, r.Topology.Validate())
	return r
}

func TestCompileSharedVariable(t *testing.T) {
	r := mustCompile(t, `[:find ?a ?n
	                      :where [?a :type Driver]
	                             [?a :age ?n]]`, DefaultOptions())

	assert.Equal(t, []string{"?a", "?n"}, r.Bindings.Strings())
	assert.Equal(t, 2, r.Count(topology.KindFilter))
	assert.Equal(t, 1, r.Count(topology.KindJoin))
	assert.Equal(t, 1, r.JoinSteps)
	assert.Empty(t, r.Diagnostics)

	driver, ok := r.Node("[?0 :type Driver]")
	require.True(t, ok)
	assert.Equal(t, []int{0}, driver.OutputVariables)

	age, ok := r.Node("[?0 :age ?2]")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, age.OutputVariables)

	join, ok := r.Node("join([?0 :type Driver], [?0 :age ?2]) on [0=0]")
	require.True(t, ok)
	assert.Equal(t, []int{0, 0, 1}, join.OutputVariables)
	assert.Equal(t, []int{0, 1}, join.DistinctVariables())
	assert.Equal(t, []int{0}, join.Spec.LeftMatch)
	assert.Equal(t, []int{0, topology.NoMatch}, join.Spec.RightMatch)
	assert.Equal(t, []topology.KeyPair{{Left: 0, Right: 0}}, join.Spec.Keys)

	desc := r.Topology
	require.Len(t, desc.Operators, 3)
	assert.Equal(t, "[?0 :type Driver]", desc.Operators[0].Name)
	assert.Equal(t, "[?0 :age ?2]", desc.Operators[1].Name)
	assert.Equal(t, join.Name, desc.Root)

	root := desc.Operators[2]
	assert.Equal(t, topology.Fields(0), root.Upstreams[0].Grouping)
	assert.Equal(t, topology.Fields(0), root.Upstreams[1].Grouping)

	require.NotNil(t, desc.Terminal)
	assert.Equal(t, ConflictSetName, desc.Terminal.Name)
	assert.Equal(t, join.Name, desc.Terminal.Source)
	assert.Equal(t, []string{"?a", "?n"}, desc.Terminal.Variables)
	assert.Equal(t, []int{0, 2}, desc.Terminal.Projection)
	assert.Empty(t, desc.Terminal.Feedback)
}

func TestCompileDisconnectedCrossJoin(t *testing.T) {
	r := mustCompile(t, `[:find ?a ?b
	                      :where [?a :type Driver]
	                             [?b :type Passenger]]`, DefaultOptions())

	assert.Equal(t, 1, r.Count(topology.KindJoin))
	assert.Equal(t, 1, r.JoinSteps)

	join, ok := r.Node("join([?0 :type Driver], [?0 :type Passenger]) on []")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, join.OutputVariables)
	assert.True(t, join.Spec.IsCross())
	assert.Equal(t, []int{topology.NoMatch}, join.Spec.LeftMatch)
	assert.Equal(t, []int{topology.NoMatch}, join.Spec.RightMatch)

	root, ok := r.Topology.Operator(r.Topology.Root)
	require.True(t, ok)
	assert.Equal(t, topology.Broadcast(), root.Upstreams[0].Grouping)
	assert.Equal(t, topology.Fields(0), root.Upstreams[1].Grouping)
	assert.Equal(t, []int{0, 1}, r.Topology.Terminal.Projection)
}

func TestCompileOperatorReuse(t *testing.T) {
	r := mustCompile(t, `[:find ?x ?z
	                      :where [?x :knows ?y]
	                             [?y :knows ?z]]`, DefaultOptions())

	require.Equal(t, 1, r.Count(topology.KindFilter))
	filter, ok := r.Node("[?0 :knows ?2]")
	require.True(t, ok)
	assert.Equal(t, 2, filter.Uses)

	join, ok := r.Node("join([?0 :knows ?2], [?0 :knows ?2]) on [1=0]")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 1, 2}, join.OutputVariables)
	assert.Equal(t, []topology.KeyPair{{Left: 1, Right: 0}}, join.Spec.Keys)

	// The shared filter is wired once and feeds both sides
	desc := r.Topology
	require.Len(t, desc.Operators, 2)

	// The shared filter publishes the slots of its first use, [?x ?y]; the
	// second use binds [?y ?z] to the same positions.
	assert.Equal(t, []int{0, 1}, desc.Operators[0].Outputs)
	assert.Equal(t, desc.Operators[0].Arity()*2, desc.Operators[1].Arity())

	root := desc.Operators[1]
	assert.Equal(t, filter.Name, root.Upstreams[0].Source)
	assert.Equal(t, filter.Name, root.Upstreams[1].Source)
	assert.Equal(t, topology.Fields(1), root.Upstreams[0].Grouping)
	assert.Equal(t, topology.Fields(0), root.Upstreams[1].Grouping)
	assert.Equal(t, []int{0, 3}, desc.Terminal.Projection)
}

func TestCompileJoinCount(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		clauses int
		joins   int
	}{
		{"single clause", `[:find ?e :where [?e :name ?n]]`, 1, 0},
		{"chain", `[:find ?a :where [?a :p ?b] [?b :q ?c] [?c :r ?d] [?d :s ?e]]`, 4, 3},
		{"star", `[:find ?e :where [?e :name ?n] [?e :age ?a] [?e :email ?m]]`, 3, 2},
		{"disconnected", `[:find ?a ?b ?c :where [?a :p 1] [?b :q 2] [?c :r 3]]`, 3, 2},
		{"partly connected", `[:find ?a :where [?a :p ?b] [?c :q ?d] [?d :r ?e]]`, 3, 2},
		{"identical disconnected", `[:find ?a ?d :where [?a :p 1] [?b :p 1] [?c :p 1] [?d :p 1]]`, 4, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustCompile(t, tt.query, DefaultOptions())
			assert.Equal(t, tt.clauses-1, r.JoinSteps)
			assert.Equal(t, tt.joins, r.Count(topology.KindJoin))
			assert.LessOrEqual(t, r.Count(topology.KindJoin), tt.clauses-1)
			assert.NotEmpty(t, r.Topology.Root)

			// Output-variable union
			for _, n := range r.Nodes {
				if n.Kind != topology.KindJoin {
					continue
				}
				left, _ := r.Node(n.Left)
				right, _ := r.Node(n.Right)
				assert.Equal(t, left.Arity()+right.Arity(), n.Arity(), n.Name)
			}
		})
	}
}

func TestCompileDisconnectedOrder(t *testing.T) {
	r := mustCompile(t, `[:find ?a ?b ?c
	                      :where [?a :p 1] [?b :q 2] [?c :r 3]]`, DefaultOptions())

	first := "join([?0 :p 1], [?0 :q 2]) on []"
	_, ok := r.Node(first)
	require.True(t, ok)

	// The joined entry goes to the end of the active list
	root := "join([?0 :r 3], " + first + ") on []"
	assert.Equal(t, root, r.Topology.Root)
	assert.Equal(t, []int{1, 2, 0}, r.Topology.Terminal.Projection)
}

func TestCompileFirstEntryWithoutPartner(t *testing.T) {
	r := mustCompile(t, `[:find ?a ?e
	                      :where [?a :p ?b] [?c :q ?d] [?d :r ?e]]`, DefaultOptions())

	// [?a :p ?b] has no partner, so it is cross joined with the next entry
	// even though the later two clauses share ?d.
	cross := "join([?0 :p ?2], [?0 :q ?2]) on []"
	_, ok := r.Node(cross)
	require.True(t, ok)
	_, ok = r.Node("join([?0 :q ?2], [?0 :r ?2]) on [1=0]")
	assert.False(t, ok)

	root := "join([?0 :r ?2], " + cross + ") on [0=3]"
	assert.Equal(t, root, r.Topology.Root)
	assert.Equal(t, 2, r.JoinSteps)
	assert.Equal(t, []int{2, 1}, r.Topology.Terminal.Projection)
}

func TestCompileCrossJoinThenConnected(t *testing.T) {
	r := mustCompile(t, `[:find ?a ?n
	                      :where [?a :type :driver] [?b :type :passenger] [?b :age ?n]]`, DefaultOptions())

	cross := "join([?0 :type :driver], [?0 :type :passenger]) on []"
	root := "join([?0 :age ?2], " + cross + ") on [0=1]"
	assert.Equal(t, root, r.Topology.Root)

	node, ok := r.Node(root)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 0, 1}, node.OutputVariables)
}

func TestCompileJoinReuse(t *testing.T) {
	r := mustCompile(t, `[:find ?a ?d
	                      :where [?a :p 1] [?b :p 1] [?c :p 1] [?d :p 1]]`, DefaultOptions())

	pair := "join([?0 :p 1], [?0 :p 1]) on []"
	node, ok := r.Node(pair)
	require.True(t, ok)
	assert.Equal(t, 2, node.Uses)
	assert.Equal(t, 3, r.JoinSteps)

	assert.Equal(t, "join("+pair+", "+pair+") on []", r.Topology.Root)
	assert.Len(t, r.Topology.Operators, 3)
	assert.Equal(t, []int{0, 3}, r.Topology.Terminal.Projection)
}

func TestCompileMalformedClause(t *testing.T) {
	r := mustCompile(t, `[:find ?a
	                      :where [?a :type Driver]
	                             [?a :age]]`, DefaultOptions())

	require.Len(t, r.Diagnostics, 1)
	d := r.Diagnostics[0]
	assert.Equal(t, DiagMalformedClause, d.Kind)
	assert.Equal(t, SeverityError, d.Severity)
	assert.Equal(t, 1, d.Clause)
	assert.Equal(t, "[?a :age]", d.Text)
	assert.True(t, errors.Is(d, ErrMalformedClause))
	assert.True(t, r.HasErrors())

	assert.Equal(t, 0, r.JoinSteps)
	assert.Equal(t, "[?0 :type Driver]", r.Topology.Root)
	assert.Equal(t, []int{0}, r.Topology.Terminal.Projection)
}

func TestCompileUnsupportedConstant(t *testing.T) {
	p := &query.Pattern{
		Find: []query.Symbol{"?a"},
		Where: []*query.Clause{
			query.NewClause(v("?a"), c(query.Keyword(":p")), c(complex(1, 1))),
			query.NewClause(v("?a"), c(query.Keyword(":q")), c(int64(1))),
			nil,
		},
	}

	r, err := Compile(p, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, r.Diagnostics, 2)
	assert.Equal(t, 0, r.Diagnostics[0].Clause)
	assert.Equal(t, 2, r.Diagnostics[1].Clause)
	assert.Equal(t, "[?0 :q 1]", r.Topology.Root)
}

func TestCompileNilClauseAndNestedPattern(t *testing.T) {
	p := &query.Pattern{
		Find: []query.Symbol{"?a"},
		Where: []*query.Clause{
			query.NewClause(v("?a"), c(query.Keyword(":q")), c(int64(1))),
			nil,
		},
		Nested: []*query.Pattern{nil, {
			Kind:  "optional",
			Where: []*query.Clause{nil, query.NewClause(v("?a"), c(query.Keyword(":r")), v("?b"))},
		}},
	}

	var r *Result
	var err error
	require.NotPanics(t, func() { r, err = Compile(p, DefaultOptions()) })
	require.NoError(t, err)

	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, DiagMalformedClause, r.Diagnostics[0].Kind)
	assert.Equal(t, 1, r.Diagnostics[0].Clause)
	assert.Equal(t, "<nil>", r.Diagnostics[0].Text)
	assert.Contains(t, r.Topology.Query, "<nil>")
	assert.Equal(t, "[?0 :q 1]", r.Topology.Root)
	assert.Equal(t, 2, r.Bindings.Len())
}

func TestCompileArityFour(t *testing.T) {
	opts := DefaultOptions()
	opts.Arity = 4

	r := mustCompile(t, `[:find ?e ?tx
	                      :where [?e :name ?n ?tx]
	                             [?e :age ?a]]`, opts)

	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, 1, r.Diagnostics[0].Clause)
	assert.Equal(t, "[?0 :name ?2 ?3]", r.Topology.Root)
	assert.Equal(t, []int{0, 2}, r.Topology.Terminal.Projection)
}

func TestCompileFatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  error
	}{
		{"unbound projection", `[:find ?z :where [?a :p ?b]]`, ErrUnboundVariable},
		{"nothing compiles", `[:find ?a :where [?a :p] [?a :q ?b ?c]]`, ErrEmptyPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compile(mustParse(t, tt.query), DefaultOptions())
			require.Error(t, err)
			assert.Nil(t, r)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := Compile(nil, DefaultOptions())
	assert.True(t, IsContractViolation(err))

	opts := DefaultOptions()
	opts.Arity = 5
	_, err = Compile(mustParse(t, `[:find ?a :where [?a :p ?b]]`), opts)
	assert.True(t, IsContractViolation(err))
}

func TestCompileMissingTerminal(t *testing.T) {
	noFind := &query.Pattern{
		Where: []*query.Clause{query.NewClause(v("?a"), c(query.Keyword(":p")), v("?b"))},
	}
	nestedOnly := `[:find ?a ?l
	                :where [?a :type Driver]
	                       (optional [?a :license ?l])]`

	t.Run("optional without find", func(t *testing.T) {
		r, err := Compile(noFind, DefaultOptions())
		require.NoError(t, err)
		assert.Nil(t, r.Topology.Terminal)
		assert.Equal(t, "[?0 :p ?2]", r.Topology.Root)
		require.Len(t, r.Diagnostics, 1)
		assert.Equal(t, DiagMissingTerminal, r.Diagnostics[0].Kind)
		assert.Equal(t, SeverityWarning, r.Diagnostics[0].Severity)
		assert.Equal(t, -1, r.Diagnostics[0].Clause)
		assert.False(t, r.HasErrors())
	})

	t.Run("optional with variable outside the root", func(t *testing.T) {
		r := mustCompile(t, nestedOnly, DefaultOptions())
		assert.Nil(t, r.Topology.Terminal)
		require.Len(t, r.Diagnostics, 1)
		assert.Equal(t, DiagMissingTerminal, r.Diagnostics[0].Kind)
	})

	required := DefaultOptions()
	required.TerminalPolicy = TerminalRequired

	t.Run("required without find", func(t *testing.T) {
		_, err := Compile(noFind, required)
		assert.True(t, errors.Is(err, ErrMissingTerminal))
	})

	t.Run("required with variable outside the root", func(t *testing.T) {
		_, err := Compile(mustParse(t, nestedOnly), required)
		assert.True(t, errors.Is(err, ErrMissingTerminal))
	})

	t.Run("no builder", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Terminal = nil
		r, err := Compile(noFind, opts)
		require.NoError(t, err)
		assert.Nil(t, r.Topology.Terminal)
	})
}

func TestCompileRetractionFeedback(t *testing.T) {
	opts := DefaultOptions()
	opts.EnableRetraction = true

	r := mustCompile(t, `[:find ?a ?n :where [?a :type Driver] [?a :age ?n]]`, opts)
	require.NotNil(t, r.Topology.Terminal)
	assert.Equal(t, "conflict-set.feedback", r.Topology.Terminal.Feedback)

	for _, op := range r.Topology.Operators {
		if op.Kind != topology.KindFilter {
			continue
		}
		require.Len(t, op.Upstreams, 2)
		assert.Equal(t, topology.Upstream{Source: "input", Grouping: topology.Shuffle()}, op.Upstreams[0])
		assert.Equal(t, topology.Upstream{Source: "conflict-set.feedback", Grouping: topology.Broadcast()}, op.Upstreams[1])
	}

	// Without a terminal the feedback connection is omitted
	opts.Terminal = nil
	r = mustCompile(t, `[:find ?a :where [?a :type Driver]]`, opts)
	assert.Len(t, r.Topology.Operators[0].Upstreams, 1)
}

func TestCompileDeterministic(t *testing.T) {
	q := `[:find ?a ?c :where [?a :knows ?b] [?b :knows ?c] [?c :age 30] [?d :type Robot]]`

	first := mustCompile(t, q, DefaultOptions())
	second := mustCompile(t, q, DefaultOptions())
	assert.Equal(t, first.Topology, second.Topology)

	renamed := mustCompile(t, `[:find ?x ?z :where [?x :knows ?y] [?y :knows ?z] [?z :age 30] [?w :type Robot]]`, DefaultOptions())
	assert.Equal(t, first.Topology.Operators, renamed.Topology.Operators)
	assert.NotEqual(t, first.Topology.ID, renamed.Topology.ID)

	opts := DefaultOptions()
	opts.InputFeed = "facts"
	other := mustCompile(t, q, opts)
	assert.NotEqual(t, first.Topology.ID, other.Topology.ID)
}

func TestCompileEvents(t *testing.T) {
	var names []string
	opts := DefaultOptions()
	opts.Handler = func(e annotations.Event) {
		names = append(names, e.Name)
	}

	mustCompile(t, `[:find ?a ?b :where [?a :type Driver] [?b :type Driver]]`, opts)
	assert.Equal(t, []string{
		annotations.CompileBegin,
		annotations.BindingsAssigned,
		annotations.FilterCreated,
		annotations.FilterReused,
		annotations.JoinCreated,
		annotations.JoinCross,
		annotations.TopologyWired,
		annotations.CompileComplete,
	}, names)
}

func TestContextLifecycle(t *testing.T) {
	p := mustParse(t, `[:find ?a ?n :where [?a :type Driver] [?a :age ?n]]`)

	ctx := NewContext(p, DefaultOptions())
	assert.True(t, errors.Is(ctx.CompileFilters(), ErrContextState))
	_, err := ctx.FinishQuery()
	assert.True(t, errors.Is(err, ErrContextState))

	require.NoError(t, ctx.InitTopology())
	assert.True(t, errors.Is(ctx.InitTopology(), ErrContextState))
	assert.True(t, errors.Is(ctx.CompileJoins(), ErrContextState))

	require.NoError(t, ctx.CompileFilters())
	assert.Equal(t, []string{"[?0 :type Driver]", "[?0 :age ?2]"}, ctx.Active())

	require.NoError(t, ctx.CompileJoins())
	assert.Len(t, ctx.Active(), 1)

	r, err := ctx.FinishQuery()
	require.NoError(t, err)
	assert.NotNil(t, r.Topology)

	_, err = ctx.FinishQuery()
	assert.True(t, errors.Is(err, ErrContextState))

	failed := NewContext(mustParse(t, `[:find ?z :where [?a :p ?b]]`), DefaultOptions())
	require.Error(t, failed.InitTopology())
	assert.True(t, errors.Is(failed.CompileFilters(), ErrContextState))
}

func TestCompilerConcurrent(t *testing.T) {
	comp := New(DefaultOptions())
	p := mustParse(t, `[:find ?a ?c :where [?a :knows ?b] [?b :knows ?c] [?c :type Person]]`)

	expected, err := comp.Compile(p)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := comp.Compile(p)
			if err == nil {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, expected.Topology, r.Topology)
	}
}

func TestCompileAll(t *testing.T) {
	comp := New(DefaultOptions())
	results, err := comp.CompileAll([]*query.Pattern{
		mustParse(t, `[:find ?a :where [?a :p ?b]]`),
		mustParse(t, `[:find ?z :where [?a :p ?b]]`),
	})
	assert.True(t, errors.Is(err, ErrUnboundVariable))
	assert.Len(t, results, 1)
}
