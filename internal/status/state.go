package status

import (
	"sync"

	"github.com/matheus3301/frontdesk/internal/bus"
)

// State names the combination of transport connectivity and doctor presence.
type State string

const (
	Disconnected  State = "DISCONNECTED"
	TransportOnly State = "TRANSPORT_ONLY"
	PresenceOnly  State = "PRESENCE_ONLY"
	Live          State = "LIVE"
)

// Derive maps the two inputs to a State. Only (true, true) is Live.
func Derive(transport, presence bool) State {
	switch {
	case transport && presence:
		return Live
	case transport:
		return TransportOnly
	case presence:
		return PresenceOnly
	default:
		return Disconnected
	}
}

// Connected reports whether s allows outbound sends.
func (s State) Connected() bool {
	return s == Live
}

// Snapshot is a read-only copy of the tracked flags.
type Snapshot struct {
	Transport bool
	Presence  bool
	Connected bool
	State     State
}

// Change is the result of a recompute. From == To when nothing moved.
type Change struct {
	From State
	To   State
}

// Changed reports whether the derived state moved.
func (c Change) Changed() bool { return c.From != c.To }

// EffectiveChanged reports whether the effective connected flag flipped.
func (c Change) EffectiveChanged() bool { return c.From.Connected() != c.To.Connected() }

// EnteredLive reports a transition into Live from any other state.
func (c Change) EnteredLive() bool { return c.To == Live && c.From != Live }

// Tracker holds transport and presence flags and derives the effective state
// from them on every mutation. The effective flag is never stored on its own.
type Tracker struct {
	mu        sync.RWMutex
	transport bool
	presence  bool
	bus       *bus.Bus
}

// NewTracker creates a tracker in Disconnected state.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{bus: b}
}

// Snapshot returns the current flags and derived state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Derive(t.transport, t.presence)
	return Snapshot{Transport: t.transport, Presence: t.presence, Connected: s.Connected(), State: s}
}

// Current returns the derived state.
func (t *Tracker) Current() State {
	return t.Snapshot().State
}

// Connected returns the effective connected flag.
func (t *Tracker) Connected() bool {
	return t.Snapshot().Connected
}

// Recompute sets the transport flag from the socket's observed state, leaving presence as-is.
func (t *Tracker) Recompute(transport bool) Change {
	return t.apply(func() { t.transport = transport })
}

// SetPresence records the doctor's presence and recomputes with the observed transport flag.
func (t *Tracker) SetPresence(online, transport bool) Change {
	return t.apply(func() {
		t.presence = online
		t.transport = transport
	})
}

// Reset forces both flags false.
func (t *Tracker) Reset() Change {
	return t.apply(func() {
		t.transport = false
		t.presence = false
	})
}

func (t *Tracker) apply(mutate func()) Change {
	t.mu.Lock()
	from := Derive(t.transport, t.presence)
	mutate()
	change := Change{From: from, To: Derive(t.transport, t.presence)}
	t.mu.Unlock()

	if change.Changed() {
		t.bus.Emit(bus.LinkStatusChanged, change)
	}
	return change
}
