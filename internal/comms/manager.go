// Package comms reconciles the doctor link's transport and presence signals
// into one connected flag and handles the events exchanged over it.
package comms

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/cipher"
	"github.com/matheus3301/frontdesk/internal/dashboard"
	"github.com/matheus3301/frontdesk/internal/metrics"
	"github.com/matheus3301/frontdesk/internal/status"
	"github.com/matheus3301/frontdesk/internal/store"
)

// ErrNotConnected is reported for any send while the link is not live.
var ErrNotConnected = errors.New("peer not connected")

// Store is the write side the inbound handlers need.
type Store interface {
	AddMessage(ctx context.Context, m store.NewMessage) (store.MessageInsert, error)
	AddPatient(ctx context.Context, p *store.Patient) (int64, error)
}

// Pusher sends the dashboard views. *dashboard.Aggregator implements it.
type Pusher interface {
	PushOnConnection(ctx context.Context) dashboard.PushResult
}

// Identity is announced to the doctor app on every transport connect.
type Identity struct {
	ClientType string `json:"clientType"`
	ClientID   string `json:"clientId"`
	Version    string `json:"version"`
}

// ConnectionStatus is the read-only view exposed to callers.
type ConnectionStatus struct {
	IsConnected      bool `json:"isConnected"`
	ConnectedClients int  `json:"connectedClients"`
}

// Manager owns the listener set on the attached socket and the connection state.
type Manager struct {
	mu     sync.Mutex
	socket Socket
	bound  []string
	gen    uint64 // bumped on every Attach and Detach

	tracker  *status.Tracker
	store    Store
	cipher   cipher.Cipher
	identity Identity
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger

	pusherMu sync.Mutex
	pusher   Pusher
	closed   bool
	pushes   sync.WaitGroup

	// Now stamps outbound identify events.
	Now func() time.Time
}

// NewManager creates a manager with nothing attached.
func NewManager(tracker *status.Tracker, st Store, c cipher.Cipher, id Identity, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		tracker:  tracker,
		store:    st,
		cipher:   c,
		identity: id,
		bus:      b,
		metrics:  m,
		logger:   logger,
		Now:      time.Now,
	}
}

// SetPusher installs the dashboard pusher triggered on entering Live.
func (m *Manager) SetPusher(p Pusher) {
	m.pusherMu.Lock()
	m.pusher = p
	m.pusherMu.Unlock()
}

// Attach replaces the borrowed socket. Listeners bound on the previous socket
// are removed first. A nil socket resets both flags and binds nothing.
func (m *Manager) Attach(s Socket) {
	m.mu.Lock()
	m.unbindLocked()
	m.socket = s
	m.gen++
	gen := m.gen
	if s == nil {
		c := m.tracker.Reset()
		m.mu.Unlock()
		m.observe(c)
		return
	}

	handlers := []struct {
		name string
		fn   Handler
	}{
		{EventConnect, func(evt Event) { m.onTransportConnect(gen, evt) }},
		{EventDisconnect, func(evt Event) { m.onTransportDisconnect(gen, evt) }},
		{EventDoctorPresence, func(evt Event) { m.onPresence(gen, evt) }},
		{EventNewMessage, m.onNewMessage},
		{EventPatientData, m.onPatientData},
		{EventAny, m.onAny},
	}
	for _, h := range handlers {
		s.On(h.name, m.guard(h.name, gen, h.fn))
		m.bound = append(m.bound, h.name)
	}
	m.mu.Unlock()

	m.recompute(gen)
}

// Detach unbinds all listeners, drops the socket reference and resets state.
// The socket itself stays open.
func (m *Manager) Detach() {
	m.mu.Lock()
	m.unbindLocked()
	m.socket = nil
	m.gen++
	c := m.tracker.Reset()
	m.mu.Unlock()
	m.observe(c)
}

// Cleanup is Detach, for shutdown paths.
func (m *Manager) Cleanup() { m.Detach() }

func (m *Manager) unbindLocked() {
	if m.socket == nil {
		m.bound = nil
		return
	}
	for _, name := range m.bound {
		m.socket.Off(name)
	}
	m.bound = nil
}

// Connected reports the effective connected flag.
func (m *Manager) Connected() bool {
	return m.tracker.Connected()
}

// State returns the derived link state.
func (m *Manager) State() status.Snapshot {
	return m.tracker.Snapshot()
}

// Status returns the connection view; at most one peer is assumed.
func (m *Manager) Status() ConnectionStatus {
	if m.Connected() {
		return ConnectionStatus{IsConnected: true, ConnectedClients: 1}
	}
	return ConnectionStatus{}
}

// Emit writes a raw event on the attached socket without the connected check.
func (m *Manager) Emit(event string, payload any) error {
	s := m.current()
	if s == nil {
		return ErrNotConnected
	}
	return s.Emit(event, payload)
}

// WaitPushes blocks until every triggered dashboard push has finished.
func (m *Manager) WaitPushes() {
	m.pushes.Wait()
}

// Close stops triggering dashboard pushes and waits for the ones in flight.
// Call it before closing anything a push reads from.
func (m *Manager) Close() {
	m.pusherMu.Lock()
	m.closed = true
	m.pusherMu.Unlock()
	m.pushes.Wait()
}

func (m *Manager) current() Socket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socket
}

// commit observes the transport of the socket attached as generation gen and
// applies mutate with it. The socket is read outside m.mu, so an Attach or
// Detach in between makes the observation stale and it is dropped.
func (m *Manager) commit(gen uint64, mutate func(transport bool) status.Change) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	s := m.socket
	m.mu.Unlock()

	up := s != nil && s.Connected()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	c := mutate(up)
	m.mu.Unlock()
	m.observe(c)
}

func (m *Manager) recompute(gen uint64) {
	m.commit(gen, m.tracker.Recompute)
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen != gen
}

// observe logs effective transitions and starts a push on entering Live.
func (m *Manager) observe(c status.Change) {
	if !c.Changed() {
		return
	}
	m.metrics.SetLinkState(string(c.To), c.To.Connected())
	if c.EffectiveChanged() {
		if c.To.Connected() {
			m.logger.Info("doctor link connected", zap.String("from", string(c.From)))
		} else {
			m.logger.Info("doctor link disconnected", zap.String("state", string(c.To)))
		}
	}
	if c.EnteredLive() {
		m.triggerPush()
	}
}

func (m *Manager) triggerPush() {
	m.pusherMu.Lock()
	p := m.pusher
	if p == nil || m.closed {
		m.pusherMu.Unlock()
		return
	}
	m.pushes.Add(1)
	m.pusherMu.Unlock()

	go func() {
		defer m.pushes.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("dashboard push panicked", zap.Any("panic", r))
			}
		}()
		res := p.PushOnConnection(context.Background())
		if !res.Success {
			m.logger.Warn("dashboard push on connect failed", zap.String("error", res.Error))
		}
	}()
}

// guard keeps a failing handler from unwinding into the socket's dispatch loop
// and drops events still in flight from a socket that has since been replaced.
func (m *Manager) guard(name string, gen uint64, fn Handler) Handler {
	return func(evt Event) {
		if m.stale(gen) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("socket handler panicked", zap.String("event", name), zap.Any("panic", r))
			}
		}()
		fn(evt)
	}
}
