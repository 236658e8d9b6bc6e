package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// DefaultParallelism is the instance count used when none is configured.
const DefaultParallelism = 4

// LocalEngine runs topologies in-process. Each join gets Parallelism
// instances and tuples are routed to them by the descriptor's groupings,
// so results do not depend on the instance count.
type LocalEngine struct {
	Parallelism int

	// Workers bounds filter evaluation in InsertBatch (0 = NumCPU).
	Workers int

	Handler annotations.Handler
}

// NewLocalEngine creates an engine with the given instance count
func NewLocalEngine(parallelism int) *LocalEngine {
	return &LocalEngine{Parallelism: parallelism}
}

// Deploy implements Adapter
func (e *LocalEngine) Deploy(ctx context.Context, d *topology.Descriptor) (Deployment, error) {
	return e.Start(ctx, d)
}

// Start validates the descriptor and builds a running deployment.
func (e *LocalEngine) Start(ctx context.Context, d *topology.Descriptor) (*LocalDeployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("cannot deploy %s: %w", d.ID, err)
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	dep := &LocalDeployment{
		desc:        d,
		parallelism: parallelism,
		pool:        NewWorkerPool(e.Workers),
		collector:   annotations.NewCollector(e.Handler),
		filters:     make(map[string]*filter),
		joins:       make(map[string]*join),
		consumers:   make(map[string][]consumer),
		facts:       make(map[string]int),
	}

	for i := range d.Operators {
		op := &d.Operators[i]
		switch op.Kind {
		case topology.KindFilter:
			f, err := newFilter(op)
			if err != nil {
				return nil, err
			}
			dep.filters[op.Name] = f
			dep.filterOrder = append(dep.filterOrder, op.Name)
		case topology.KindJoin:
			dep.joins[op.Name] = newJoin(op, parallelism)
			for side, up := range op.Upstreams {
				dep.consumers[up.Source] = append(dep.consumers[up.Source], consumer{
					op:       op.Name,
					side:     topology.Side(side),
					grouping: up.Grouping,
				})
			}
		}
	}
	if d.Terminal != nil {
		dep.terminal = newConflictSet(d.Terminal)
	}

	dep.collector.AddEvent(annotations.RuntimeDeployed, map[string]interface{}{
		"id":          d.ID,
		"parallelism": parallelism,
	})
	return dep, nil
}

type consumer struct {
	op       string
	side     topology.Side
	grouping topology.Grouping
}

// LocalDeployment is a topology running inside a LocalEngine. It is safe
// for concurrent use; deltas are applied one at a time.
type LocalDeployment struct {
	mu sync.Mutex

	desc        *topology.Descriptor
	parallelism int
	pool        *WorkerPool
	collector   *annotations.Collector

	filters     map[string]*filter
	filterOrder []string
	joins       map[string]*join
	consumers   map[string][]consumer
	terminal    *conflictSet

	// facts is the input multiset, so retractions can be checked
	facts  map[string]int
	closed bool
}

// ID implements Deployment
func (d *LocalDeployment) ID() string {
	return d.desc.ID
}

// Parallelism returns the number of instances per join
func (d *LocalDeployment) Parallelism() int {
	return d.parallelism
}

// Insert implements Deployment
func (d *LocalDeployment) Insert(ctx context.Context, fact query.Tuple) error {
	return d.apply(ctx, fact, 1)
}

// Retract implements Deployment
func (d *LocalDeployment) Retract(ctx context.Context, fact query.Tuple) error {
	return d.apply(ctx, fact, -1)
}

func (d *LocalDeployment) apply(ctx context.Context, fact query.Tuple, weight int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	if err := d.record(fact, weight); err != nil {
		return err
	}
	outputs, err := d.evaluate(fact)
	if err != nil {
		return err
	}
	return d.feed(fact, outputs, weight)
}

// InsertBatch inserts facts in order. Filters are evaluated concurrently on
// the worker pool; joins and the terminal see the facts sequentially.
func (d *LocalDeployment) InsertBatch(ctx context.Context, facts []query.Tuple) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	outputs := make([][]query.Tuple, len(facts))
	err := d.pool.Execute(ctx, len(facts), func(_ context.Context, i int) error {
		out, err := d.evaluate(facts[i])
		outputs[i] = out
		return err
	})
	if err != nil {
		return err
	}

	for i, fact := range facts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.record(fact, 1); err != nil {
			return err
		}
		if err := d.feed(fact, outputs[i], 1); err != nil {
			return err
		}
	}
	return nil
}

// record maintains the input multiset.
func (d *LocalDeployment) record(fact query.Tuple, weight int) error {
	key, err := fullKey(fact)
	if err != nil {
		return err
	}
	n := d.facts[key] + weight
	switch {
	case n < 0:
		return fmt.Errorf("%w: %v", ErrUnknownFact, fact)
	case n == 0:
		delete(d.facts, key)
	default:
		d.facts[key] = n
	}
	return nil
}

// evaluate runs every filter on fact. Filters are stateless, so the result
// does not depend on which instance the shuffle grouping picks.
func (d *LocalDeployment) evaluate(fact query.Tuple) ([]query.Tuple, error) {
	out := make([]query.Tuple, len(d.filterOrder))
	for i, name := range d.filterOrder {
		t, err := d.filters[name].match(fact)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (d *LocalDeployment) feed(fact query.Tuple, outputs []query.Tuple, weight int) error {
	for i, t := range outputs {
		if t == nil {
			continue
		}
		if err := d.propagate(d.filterOrder[i], Delta{Tuple: t, Weight: weight}); err != nil {
			return err
		}
	}

	rows := 0
	if d.terminal != nil {
		rows = len(d.terminal.rows)
	}
	d.collector.AddEvent(annotations.RuntimeDelta, map[string]interface{}{
		"tuple":   fact,
		"weight":  weight,
		"results": rows,
	})
	return nil
}

// propagate delivers an operator output to its consumers, depth first.
func (d *LocalDeployment) propagate(source string, delta Delta) error {
	for _, c := range d.consumers[source] {
		instances, err := route(c.grouping, delta.Tuple, d.parallelism)
		if err != nil {
			return err
		}
		j := d.joins[c.op]
		for _, inst := range instances {
			outs, err := j.receive(inst, c.side, delta)
			if err != nil {
				return err
			}
			for _, out := range outs {
				if err := d.propagate(c.op, out); err != nil {
					return err
				}
			}
		}
	}

	if source == d.desc.Root && d.terminal != nil {
		return d.terminal.apply(delta)
	}
	return nil
}

// Results implements Deployment. A topology without a terminal has no
// observable output.
func (d *LocalDeployment) Results() []Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminal == nil {
		return nil
	}
	return d.terminal.results()
}

// StateSize returns the number of tuples held by join instances.
func (d *LocalDeployment) StateSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, j := range d.joins {
		n += j.size()
	}
	return n
}

// Close implements Deployment
func (d *LocalDeployment) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.collector.AddEvent(annotations.RuntimeClosed, map[string]interface{}{"id": d.desc.ID})
	return nil
}

var (
	_ Adapter    = (*LocalEngine)(nil)
	_ Deployment = (*LocalDeployment)(nil)
)
