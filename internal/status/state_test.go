package status

import (
	"testing"

	"github.com/abda11atar3k/leblebbot/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Disconnected, Connected},
		{Disconnected, LoggedOut},
		{Connecting, Connected},
		{Connecting, Disconnected},
		{Connected, Disconnected},
		{Connected, LoggedOut},
		{LoggedOut, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			// Walk to the "from" state.
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, LoggedOut)
	if err := m.Transition(Disconnected); err == nil {
		t.Error("Transition(LOGGED_OUT -> DISCONNECTED) should fail")
	}
}

func TestRepeatedStateIsNoOp(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connected); err != nil {
		t.Fatal(err)
	}
	// The gateway re-sends the current state on every webhook ping.
	if err := m.Transition(Connected); err != nil {
		t.Fatalf("re-asserting current state: %v", err)
	}

	<-ch
	select {
	case evt := <-ch:
		t.Errorf("no-op transition published event: %v", evt)
	default:
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != "status.changed" {
		t.Errorf("event kind = %q, want status.changed", evt.Kind)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Disconnected || change.To != Connecting {
		t.Errorf("change = %v -> %v, want DISCONNECTED -> CONNECTING", change.From, change.To)
	}
}

// TestReconnectCycle verifies the ordinary session lifecycle:
// DISCONNECTED → CONNECTING → CONNECTED → DISCONNECTED → CONNECTING → CONNECTED
func TestReconnectCycle(t *testing.T) {
	m := NewMachine(nil)

	steps := []State{Connecting, Connected, Disconnected, Connecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Connected {
		t.Errorf("final state = %s, want CONNECTED", m.Current())
	}
}

// TestLoggedOutRequiresReauth verifies that after a logout the machine only
// leaves LOGGED_OUT once the gateway reports a new session.
func TestLoggedOutRequiresReauth(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Connected)

	if err := m.Transition(LoggedOut); err != nil {
		t.Fatalf("CONNECTED -> LOGGED_OUT: %v", err)
	}
	if err := m.Transition(Disconnected); err == nil {
		t.Error("LOGGED_OUT -> DISCONNECTED should fail")
	}
	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("LOGGED_OUT -> CONNECTING: %v", err)
	}
}

func TestFromGatewayState(t *testing.T) {
	tests := []struct {
		raw  string
		want State
		ok   bool
	}{
		{"open", Connected, true},
		{"connecting", Connecting, true},
		{"close", Disconnected, true},
		{"logged_out", LoggedOut, true},
		{"refused", "", false},
	}
	for _, tt := range tests {
		got, ok := FromGatewayState(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FromGatewayState(%q) = %s, %v; want %s, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected: {},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		LoggedOut:    {Connecting, Connected, LoggedOut},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
