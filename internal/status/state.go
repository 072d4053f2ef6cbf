// Package status tracks per-instance connection state.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"wabridge/internal/bus"
)

// State represents an instance connection state.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	NotFound     State = "not_found"
)

// validTransitions defines allowed state transitions. Self-transitions are
// treated as no-ops by the machine, not listed here.
var validTransitions = map[State][]State{
	Disconnected: {Connecting, Connected, NotFound},
	Connecting:   {Connected, Disconnected, NotFound},
	Connected:    {Disconnected, Connecting, NotFound},
	NotFound:     {Connecting, Connected, Disconnected},
}

// Machine tracks and enforces connection state transitions for one instance.
type Machine struct {
	mu       sync.RWMutex
	instance string
	current  State
	bus      *bus.Bus
}

// NewMachine creates a state machine for an instance, starting disconnected.
func NewMachine(instance string, b *bus.Bus) *Machine {
	return &Machine{
		instance: instance,
		current:  Disconnected,
		bus:      b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Same-state transitions are
// silent no-ops; anything else outside the transition map is an error.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.current {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "instance.status_changed",
			Instance:  m.instance,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}

// Registry holds one machine per instance.
type Registry struct {
	mu       sync.Mutex
	machines map[string]*Machine
	bus      *bus.Bus
}

// NewRegistry creates an empty machine registry.
func NewRegistry(b *bus.Bus) *Registry {
	return &Registry{
		machines: make(map[string]*Machine),
		bus:      b,
	}
}

// Get returns the machine for an instance, creating it on first use.
func (r *Registry) Get(instance string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[instance]
	if !ok {
		m = NewMachine(instance, r.bus)
		r.machines[instance] = m
	}
	return m
}
