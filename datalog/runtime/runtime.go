// Package runtime deploys compiled topologies. Adapter is the contract an
// execution engine implements; LocalEngine is an in-process engine that
// honours the grouping contract with a configurable number of instances per
// operator.
package runtime

import (
	"context"
	"errors"

	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

var (
	// ErrClosed is returned by a deployment after Close.
	ErrClosed = errors.New("deployment closed")

	// ErrUnknownFact is returned when retracting a fact that is not present.
	ErrUnknownFact = errors.New("fact not present")

	// ErrUnsupportedValue is returned for fact values with no canonical form.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// Adapter hands a descriptor to an execution engine.
type Adapter interface {
	Deploy(ctx context.Context, d *topology.Descriptor) (Deployment, error)
}

// Deployment is a running topology.
type Deployment interface {
	// ID returns the descriptor ID
	ID() string

	// Insert adds a fact to the input feed.
	Insert(ctx context.Context, fact query.Tuple) error

	// Retract removes a previously inserted fact.
	Retract(ctx context.Context, fact query.Tuple) error

	// Results returns the terminal's conflict set in canonical order.
	Results() []Row

	Close() error
}

// Row is one projected result with its multiplicity.
type Row struct {
	Values query.Tuple
	Count  int
}

// Delta is a weighted tuple: +1 inserts, -1 retracts.
type Delta struct {
	Tuple  query.Tuple
	Weight int
}
