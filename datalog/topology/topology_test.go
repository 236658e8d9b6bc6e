package topology

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	driverName = "[?0 :type Driver]"
	ageName    = "[?0 :age ?2]"
	joinName   = "join([?0 :type Driver], [?0 :age ?2]) on [0=0]"
)

// driverAge is the topology of
// [:find ?a ?n :where [?a :type Driver] [?a :age ?n]]
func driverAge() *Descriptor {
	return &Descriptor{
		ID:       "b3c0b0a4-0000-5000-8000-000000000000",
		Query:    "[:find ?a ?n :where [?a :type Driver] [?a :age ?n]]",
		Input:    "input",
		Bindings: []string{"?a", "?n"},
		Operators: []Operator{
			{
				Name:      driverName,
				Kind:      KindFilter,
				Terms:     []string{"?0", ":type", "Driver"},
				Outputs:   []int{0},
				Upstreams: []Upstream{{Source: "input", Grouping: Shuffle()}},
			},
			{
				Name:      ageName,
				Kind:      KindFilter,
				Terms:     []string{"?0", ":age", "?2"},
				Outputs:   []int{0, 1},
				Upstreams: []Upstream{{Source: "input", Grouping: Shuffle()}},
			},
			{
				Name: joinName,
				Kind: KindJoin,
				Join: &JoinSpec{
					LeftMatch:  []int{0},
					RightMatch: []int{0, NoMatch},
					Keys:       []KeyPair{{Left: 0, Right: 0}},
					Template:   []Source{{Left, 0}, {Right, 0}, {Right, 1}},
				},
				Outputs: []int{0, 0, 1},
				Upstreams: []Upstream{
					{Source: driverName, Grouping: Fields(0)},
					{Source: ageName, Grouping: Fields(0)},
				},
			},
		},
		Root: joinName,
		Terminal: &Terminal{
			Name:       "conflict-set",
			Source:     joinName,
			Variables:  []string{"?a", "?n"},
			Projection: []int{0, 2},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, driverAge().Validate())
	assert.NoError(t, (&Descriptor{Input: "input"}).Validate())

	tests := []struct {
		name   string
		mutate func(d *Descriptor)
	}{
		{"missing input", func(d *Descriptor) { d.Input = "" }},
		{"duplicate operator", func(d *Descriptor) { d.Operators[1].Name = driverName }},
		{"filter without terms", func(d *Descriptor) { d.Operators[0].Terms = nil }},
		{"filter on wrong feed", func(d *Descriptor) { d.Operators[0].Upstreams[0].Source = "other" }},
		{"filter output mismatch", func(d *Descriptor) { d.Operators[1].Outputs = []int{0} }},
		{"feedback without terminal feed", func(d *Descriptor) {
			d.Operators[0].Upstreams = append(d.Operators[0].Upstreams, Upstream{Source: "conflict-set.feedback", Grouping: Broadcast()})
		}},
		{"join before its input", func(d *Descriptor) {
			d.Operators[0], d.Operators[2] = d.Operators[2], d.Operators[0]
		}},
		{"join with one upstream", func(d *Descriptor) { d.Operators[2].Upstreams = d.Operators[2].Upstreams[:1] }},
		{"join arity", func(d *Descriptor) { d.Operators[2].Outputs = []int{0, 1} }},
		{"join key out of range", func(d *Descriptor) { d.Operators[2].Join.Keys[0].Right = 5 }},
		{"join grouping mismatch", func(d *Descriptor) { d.Operators[2].Upstreams[1].Grouping = Fields(1) }},
		{"join shuffled", func(d *Descriptor) { d.Operators[2].Upstreams[0].Grouping = Shuffle() }},
		{"root not last", func(d *Descriptor) { d.Root = ageName }},
		{"terminal source", func(d *Descriptor) { d.Terminal.Source = ageName }},
		{"terminal projection", func(d *Descriptor) { d.Terminal.Projection = []int{0, 3} }},
		{"terminal projection size", func(d *Descriptor) { d.Terminal.Projection = []int{0} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := driverAge()
			tt.mutate(d)
			err := d.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTopology))
		})
	}
}

func TestValidateCrossJoin(t *testing.T) {
	d := driverAge()
	d.Operators[1] = Operator{
		Name:      "[?0 :type Passenger]",
		Kind:      KindFilter,
		Terms:     []string{"?0", ":type", "Passenger"},
		Outputs:   []int{1},
		Upstreams: []Upstream{{Source: "input", Grouping: Shuffle()}},
	}
	cross := &d.Operators[2]
	cross.Name = "join([?0 :type Driver], [?0 :type Passenger]) on []"
	cross.Join = &JoinSpec{
		LeftMatch:  []int{NoMatch},
		RightMatch: []int{NoMatch},
		Template:   []Source{{Left, 0}, {Right, 0}},
	}
	cross.Outputs = []int{0, 1}
	cross.Upstreams = []Upstream{
		{Source: driverName, Grouping: Broadcast()},
		{Source: "[?0 :type Passenger]", Grouping: Fields(0)},
	}
	d.Root = cross.Name
	d.Terminal.Source = cross.Name
	d.Terminal.Projection = []int{0, 1}
	require.NoError(t, d.Validate())

	cross.Upstreams[0].Grouping = Fields()
	assert.Error(t, d.Validate())
}

func TestValidateFeedback(t *testing.T) {
	d := driverAge()
	d.Terminal.Feedback = "conflict-set.feedback"
	for i := 0; i < 2; i++ {
		d.Operators[i].Upstreams = append(d.Operators[i].Upstreams,
			Upstream{Source: "conflict-set.feedback", Grouping: Broadcast()})
	}
	require.NoError(t, d.Validate())

	d.Operators[0].Upstreams[1].Grouping = Shuffle()
	assert.Error(t, d.Validate())
}

func TestDescriptorLookup(t *testing.T) {
	d := driverAge()
	op, ok := d.Operator(ageName)
	require.True(t, ok)
	assert.Equal(t, 2, op.Arity())
	_, ok = d.Operator("nope")
	assert.False(t, ok)

	assert.Equal(t, 2, d.Count(KindFilter))
	assert.Equal(t, 1, d.Count(KindJoin))

	j := d.Operators[2].Join
	assert.False(t, j.IsCross())
	assert.Equal(t, []int{0}, j.LeftKeys())
	assert.Equal(t, []int{0}, j.RightKeys())
}

func TestYAMLRoundTrip(t *testing.T) {
	d := driverAge()
	data, err := d.EncodeYAML()
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "kind: join")
	assert.Contains(t, text, "type: fields")
	assert.Contains(t, text, "side: right")

	decoded, err := DecodeYAML(data)
	require.NoError(t, err)
	assert.Equal(t, d, decoded)
}

func TestDecodeYAMLRejectsInvalid(t *testing.T) {
	_, err := DecodeYAML([]byte("id: x\ninput: \"\"\n"))
	assert.True(t, errors.Is(err, ErrInvalidTopology))

	_, err = DecodeYAML([]byte("operators: [{kind: sideways}]"))
	assert.Error(t, err)
}

func TestEncodeJSON(t *testing.T) {
	data, err := driverAge().EncodeJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind": "filter"`)
	assert.Contains(t, string(data), `"projection": [`)
}

func TestGrouping(t *testing.T) {
	assert.Equal(t, "shuffle", Shuffle().String())
	assert.Equal(t, "broadcast", Broadcast().String())
	assert.Equal(t, "fields[0 2]", Fields(0, 2).String())

	var g GroupingType
	require.NoError(t, g.UnmarshalText([]byte("broadcast")))
	assert.Equal(t, GroupBroadcast, g)
	assert.Error(t, g.UnmarshalText([]byte("random")))
}

func TestRender(t *testing.T) {
	d := driverAge()

	plan := d.String()
	assert.Contains(t, plan, "Operators: 3")
	assert.Contains(t, plan, "Operator 3: "+joinName)
	assert.Contains(t, plan, "Keys: [{0 0}]")
	assert.Contains(t, plan, "Upstream: [?0 :type Driver] (fields[0])")
	assert.Contains(t, plan, "Terminal conflict-set <- "+joinName)

	table := d.Table()
	assert.Contains(t, table, "#1 fields[0]; #2 fields[0]")
	assert.Contains(t, table, "_3 operators_")
	assert.Equal(t, "_Empty topology_", (&Descriptor{}).Table())

	dotText := d.DOT()
	assert.Contains(t, dotText, "digraph")
	assert.Contains(t, dotText, "input")
	assert.Contains(t, dotText, "conflict-set")

	mermaid := d.Mermaid()
	assert.True(t, strings.HasPrefix(mermaid, "```mermaid\n"))
	assert.Contains(t, mermaid, "flowchart LR")
	assert.Contains(t, mermaid, "style n")
	assert.Contains(t, mermaid, "fill:lightblue")
	assert.Contains(t, mermaid, "fill:lightyellow")
	assert.Contains(t, mermaid, `"input"`, "feeds carry their name as label")
	assert.NotContains(t, mermaid, "filled")
}

func TestRenderMermaidWithFeedback(t *testing.T) {
	d := driverAge()
	d.Terminal.Feedback = "conflict-set.feedback"
	for i := range d.Operators {
		op := &d.Operators[i]
		if op.Kind == KindFilter {
			op.Upstreams = append(op.Upstreams, Upstream{Source: d.Terminal.Feedback, Grouping: Broadcast()})
		}
	}
	require.NoError(t, d.Validate())

	var mermaid string
	require.NotPanics(t, func() { mermaid = d.Mermaid() })
	assert.Contains(t, mermaid, "conflict-set.feedback")
	assert.Contains(t, mermaid, "fill:lightcyan")
	assert.Contains(t, d.DOT(), "dashed")
}
