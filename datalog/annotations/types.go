// Package annotations provides a low-overhead event system for tracing query
// compilation and topology execution.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Compilation lifecycle
	CompileBegin     = "compile/begin"
	CompileComplete  = "compile/completed"
	CompileCacheHit  = "compile/cache.hit"
	BindingsAssigned = "compile/bindings.assigned"

	// Operator construction
	FilterCreated   = "compile/filter.created"
	FilterReused    = "compile/filter.reused"
	JoinCreated     = "compile/join.created"
	JoinReused      = "compile/join.reused"
	JoinCross       = "compile/join.cross"
	ClauseSkipped   = "compile/clause.skipped"
	TerminalMissing = "compile/terminal.missing"
	TopologyWired   = "compile/topology.wired"

	// Runtime
	RuntimeDeployed = "runtime/deployed"
	RuntimeDelta    = "runtime/delta"
	RuntimeClosed   = "runtime/closed"

	// Errors
	ErrorContract = "error/compile.contract"
)

// Event represents a single annotation event.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events and forwards them to a handler.
// A Collector with a nil handler is disabled and records nothing.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 32),
	}
}

// Enabled reports whether events are being recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddEvent records an instantaneous event.
func (c *Collector) AddEvent(name string, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}
	now := time.Now()
	c.Add(Event{Name: name, Start: now, End: now, Data: data})
}

// AddTiming records an event with timing information.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
