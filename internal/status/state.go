package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/DarkarBlays/inventario/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting   State = "BOOTING"
	Migrating State = "MIGRATING"
	Ready     State = "READY"
	Offline   State = "OFFLINE"
	Error     State = "ERROR"
)

// validTransitions defines allowed state transitions. Local writes are
// accepted in both READY and OFFLINE; OFFLINE only means the remote is
// unreachable and the outbox is growing.
var validTransitions = map[State][]State{
	Booting:   {Migrating, Error},
	Migrating: {Ready, Error},
	Ready:     {Offline, Error},
	Offline:   {Ready, Error},
	Error:     {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	reason  string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state, when it was entered and the reason
// given for entering it.
func (m *Machine) Snapshot() (State, time.Time, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.since, m.reason
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	return m.TransitionWithReason(to, "")
}

// TransitionWithReason is Transition with a human-readable cause attached to
// the published event.
func (m *Machine) TransitionWithReason(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.reason = reason
	m.bus.Publish(bus.Event{
		Kind:      bus.KindStatusChanged,
		Timestamp: m.since,
		Payload: StatusChange{
			From:   from,
			To:     to,
			Reason: reason,
		},
	})
	return nil
}

// Ensure moves to state to if the machine is not already there. It is used by
// the relay, which reports READY or OFFLINE after every push attempt.
func (m *Machine) Ensure(to State, reason string) error {
	if m.Current() == to {
		return nil
	}
	return m.TransitionWithReason(to, reason)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State  `json:"from"`
	To     State  `json:"to"`
	Reason string `json:"reason,omitempty"`
}
