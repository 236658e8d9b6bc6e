package topology

import (
	"fmt"
)

// GroupingType selects how an upstream routes tuples to operator instances.
type GroupingType uint8

const (
	// GroupShuffle routes each tuple to one instance chosen from the whole
	// tuple, so a retraction reaches the instance that saw the insertion.
	GroupShuffle GroupingType = iota
	// GroupFields routes on the values at Keys: equal keys, same instance.
	GroupFields
	// GroupBroadcast delivers every tuple to every instance.
	GroupBroadcast
)

func (g GroupingType) String() string {
	switch g {
	case GroupShuffle:
		return "shuffle"
	case GroupFields:
		return "fields"
	case GroupBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("GroupingType(%d)", uint8(g))
	}
}

// MarshalText implements encoding.TextMarshaler
func (g GroupingType) MarshalText() ([]byte, error) {
	if g > GroupBroadcast {
		return nil, fmt.Errorf("unknown grouping type %d", uint8(g))
	}
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (g *GroupingType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "shuffle":
		*g = GroupShuffle
	case "fields":
		*g = GroupFields
	case "broadcast":
		*g = GroupBroadcast
	default:
		return fmt.Errorf("unknown grouping type %q", string(b))
	}
	return nil
}

// Grouping is the partitioning contract of one upstream connection. The
// compiler only emits the key list; hashing and instance selection belong to
// the execution engine.
type Grouping struct {
	Type GroupingType `yaml:"type" json:"type"`
	Keys []int        `yaml:"keys,omitempty" json:"keys,omitempty"`
}

// Shuffle returns a shuffle grouping
func Shuffle() Grouping {
	return Grouping{Type: GroupShuffle}
}

// Fields returns a grouping on the given output positions
func Fields(keys ...int) Grouping {
	return Grouping{Type: GroupFields, Keys: keys}
}

// Broadcast returns a broadcast grouping
func Broadcast() Grouping {
	return Grouping{Type: GroupBroadcast}
}

func (g Grouping) String() string {
	if g.Type == GroupFields {
		return fmt.Sprintf("fields%v", g.Keys)
	}
	return g.Type.String()
}
