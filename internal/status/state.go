// Package status tracks the gateway instance's connection lifecycle and
// publishes transitions on the event bus.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/abda11atar3k/leblebbot/internal/bus"
)

// State represents the gateway instance's connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	LoggedOut    State = "LOGGED_OUT"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting, Connected, LoggedOut},
	Connecting:   {Connected, Disconnected, LoggedOut},
	Connected:    {Disconnected, Connecting, LoggedOut},
	LoggedOut:    {Connecting, Connected},
}

// FromGatewayState maps a raw connection.update state to a State.
func FromGatewayState(s string) (State, bool) {
	switch s {
	case "open":
		return Connected, true
	case "connecting":
		return Connecting, true
	case "close":
		return Disconnected, true
	case "logged_out", "loggedOut":
		return LoggedOut, true
	default:
		return "", false
	}
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Re-asserting the current state
// is a no-op; an invalid transition returns an error. Valid transitions
// publish a status.changed event.
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
			Kind:      "status.changed",
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
