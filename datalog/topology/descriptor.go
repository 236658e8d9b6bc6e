// Package topology describes a compiled operator network: the hand-off
// format between the query compiler and an execution engine.
//
// A Descriptor lists operators in dependency order (every upstream appears
// before its consumers). Operators reference each other by canonical name,
// so a Filter shared by several joins appears once and is wired once.
package topology

import (
	"fmt"
	"slices"
)

// Kind discriminates operator variants
type Kind uint8

const (
	KindFilter Kind = iota
	KindJoin
)

func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindJoin:
		return "join"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindFilter, KindJoin:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown operator kind %d", uint8(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "filter":
		*k = KindFilter
	case "join":
		*k = KindJoin
	default:
		return fmt.Errorf("unknown operator kind %q", string(b))
	}
	return nil
}

// NoMatch marks a join position with no counterpart on the other side.
const NoMatch = -1

// Side selects one input of a join
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// MarshalText implements encoding.TextMarshaler
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "left":
		*s = Left
	case "right":
		*s = Right
	default:
		return fmt.Errorf("unknown join side %q", string(b))
	}
	return nil
}

// Source is a position on one side of a join.
type Source struct {
	Side Side `yaml:"side" json:"side"`
	Pos  int  `yaml:"pos" json:"pos"`
}

// KeyPair aligns a left output position with the right output position
// holding the same variable.
type KeyPair struct {
	Left  int `yaml:"left" json:"left"`
	Right int `yaml:"right" json:"right"`
}

// JoinSpec is the positional join contract of a Join operator.
//
// LeftMatch[i] is the first right position carrying the variable at left
// position i, or NoMatch; RightMatch is the mirror image. Keys holds one pair
// per distinct shared variable, in left order. Template maps each output
// position to the side and position it is copied from.
type JoinSpec struct {
	LeftMatch  []int     `yaml:"left_match" json:"left_match"`
	RightMatch []int     `yaml:"right_match" json:"right_match"`
	Keys       []KeyPair `yaml:"keys,omitempty" json:"keys,omitempty"`
	Template   []Source  `yaml:"template" json:"template"`
}

// IsCross reports whether the join has no shared variable.
func (j *JoinSpec) IsCross() bool {
	return len(j.Keys) == 0
}

// LeftKeys returns the left positions of Keys.
func (j *JoinSpec) LeftKeys() []int {
	keys := make([]int, len(j.Keys))
	for i, k := range j.Keys {
		keys[i] = k.Left
	}
	return keys
}

// RightKeys returns the right positions of Keys, index-aligned with LeftKeys.
func (j *JoinSpec) RightKeys() []int {
	keys := make([]int, len(j.Keys))
	for i, k := range j.Keys {
		keys[i] = k.Right
	}
	return keys
}

// Upstream is one input connection of an operator.
type Upstream struct {
	Source   string   `yaml:"source" json:"source"`
	Grouping Grouping `yaml:"grouping" json:"grouping"`
}

// Operator is one Filter or Join of the topology.
//
// Outputs are the binding slots of the clause or join that first created the
// operator. An operator shared by several clauses emits the same positional
// tuples for every consumer; a later use binds its own slots to those
// positions, which Outputs does not show. Consumers should rely on the
// positions, JoinSpec and Terminal.Projection, not on the slot numbers.
type Operator struct {
	Name      string     `yaml:"name" json:"name"`
	Kind      Kind       `yaml:"kind" json:"kind"`
	Terms     []string   `yaml:"terms,omitempty" json:"terms,omitempty"`
	Join      *JoinSpec  `yaml:"join,omitempty" json:"join,omitempty"`
	Outputs   []int      `yaml:"outputs" json:"outputs"`
	Upstreams []Upstream `yaml:"upstreams" json:"upstreams"`
}

// Arity returns the number of values in each output tuple.
func (o *Operator) Arity() int {
	return len(o.Outputs)
}

// Terminal is the conflict-set sink fed by the root operator.
type Terminal struct {
	Name       string   `yaml:"name" json:"name"`
	Source     string   `yaml:"source" json:"source"`
	Variables  []string `yaml:"variables" json:"variables"`
	Projection []int    `yaml:"projection" json:"projection"`
	Feedback   string   `yaml:"feedback,omitempty" json:"feedback,omitempty"`
}

// Descriptor is a compiled topology.
type Descriptor struct {
	ID        string     `yaml:"id" json:"id"`
	Query     string     `yaml:"query" json:"query"`
	Input     string     `yaml:"input" json:"input"`
	Bindings  []string   `yaml:"bindings" json:"bindings"`
	Operators []Operator `yaml:"operators" json:"operators"`
	Root      string     `yaml:"root,omitempty" json:"root,omitempty"`
	Terminal  *Terminal  `yaml:"terminal,omitempty" json:"terminal,omitempty"`
}

// Operator returns the operator with the given name.
func (d *Descriptor) Operator(name string) (*Operator, bool) {
	for i := range d.Operators {
		if d.Operators[i].Name == name {
			return &d.Operators[i], true
		}
	}
	return nil, false
}

// Count returns the number of operators of the given kind.
func (d *Descriptor) Count(kind Kind) int {
	n := 0
	for _, op := range d.Operators {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of d.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	out := *d
	out.Bindings = slices.Clone(d.Bindings)
	out.Operators = make([]Operator, len(d.Operators))
	for i, op := range d.Operators {
		op.Terms = slices.Clone(op.Terms)
		op.Outputs = slices.Clone(op.Outputs)
		op.Upstreams = slices.Clone(op.Upstreams)
		for j := range op.Upstreams {
			op.Upstreams[j].Grouping.Keys = slices.Clone(op.Upstreams[j].Grouping.Keys)
		}
		op.Join = op.Join.Clone()
		out.Operators[i] = op
	}
	if d.Terminal != nil {
		t := *d.Terminal
		t.Variables = slices.Clone(t.Variables)
		t.Projection = slices.Clone(t.Projection)
		out.Terminal = &t
	}
	return &out
}

// Clone returns a deep copy of j.
func (j *JoinSpec) Clone() *JoinSpec {
	if j == nil {
		return nil
	}
	return &JoinSpec{
		LeftMatch:  slices.Clone(j.LeftMatch),
		RightMatch: slices.Clone(j.RightMatch),
		Keys:       slices.Clone(j.Keys),
		Template:   slices.Clone(j.Template),
	}
}
