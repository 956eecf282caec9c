package comms

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matheus3301/frontdesk/internal/cipher"
	"github.com/matheus3301/frontdesk/internal/dashboard"
	"github.com/matheus3301/frontdesk/internal/status"
	"github.com/matheus3301/frontdesk/internal/store"
)

type emitted struct {
	event   string
	payload any
}

// mockSocket records listener registration and emits.
type mockSocket struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string]Handler
	ops       []string
	emits     []emitted
	emitErr   error
}

func newMockSocket(connected bool) *mockSocket {
	return &mockSocket{connected: connected, handlers: make(map[string]Handler)}
}

func (s *mockSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *mockSocket) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emitErr != nil {
		return s.emitErr
	}
	s.emits = append(s.emits, emitted{event, payload})
	return nil
}

func (s *mockSocket) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
	s.ops = append(s.ops, "on:"+event)
}

func (s *mockSocket) Off(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
	s.ops = append(s.ops, "off:"+event)
}

func (s *mockSocket) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// fire dispatches like the transport: the named handler, then the catch-all.
func (s *mockSocket) fire(name string, data string) {
	s.mu.Lock()
	h := s.handlers[name]
	all := s.handlers[EventAny]
	s.mu.Unlock()
	evt := Event{Name: name, Data: json.RawMessage(data)}
	if h != nil {
		h(evt)
	}
	if all != nil {
		all(evt)
	}
}

func (s *mockSocket) countOps(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if len(op) >= len(prefix) && op[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (s *mockSocket) sent(event string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, e := range s.emits {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	messages []store.NewMessage
	patients []store.Patient
	panicOn  bool
}

func (f *fakeStore) AddMessage(_ context.Context, m store.NewMessage) (store.MessageInsert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn {
		panic("store exploded")
	}
	f.messages = append(f.messages, m)
	return store.MessageInsert{ID: int64(len(f.messages))}, nil
}

func (f *fakeStore) AddPatient(_ context.Context, p *store.Patient) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Name == "" {
		return 0, errors.New("add patient: name is required")
	}
	f.patients = append(f.patients, *p)
	return int64(len(f.patients)), nil
}

func (f *fakeStore) patientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patients)
}

type countingPusher struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPusher) PushOnConnection(context.Context) dashboard.PushResult {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return dashboard.PushResult{Success: true}
}

func (p *countingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

const testKey = "clinic-shared-key"

func newTestManager(t *testing.T) (*Manager, *fakeStore, *countingPusher) {
	t.Helper()
	c, err := cipher.NewAES(testKey)
	require.NoError(t, err)
	st := &fakeStore{}
	p := &countingPusher{}
	m := NewManager(status.NewTracker(nil), st, c, Identity{ClientType: "reception", ClientID: "desk-1", Version: "1.0.0"}, nil, nil, nil)
	m.SetPusher(p)
	return m, st, p
}

func encrypt(t *testing.T, plaintext string) string {
	t.Helper()
	c, err := cipher.NewAES(testKey)
	require.NoError(t, err)
	ct, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	raw, err := json.Marshal(ct)
	require.NoError(t, err)
	return string(raw)
}

// goLive attaches a connected socket and reports the doctor online.
func goLive(t *testing.T, m *Manager) *mockSocket {
	t.Helper()
	s := newMockSocket(true)
	m.Attach(s)
	s.fire(EventDoctorPresence, `{"online":true}`)
	m.WaitPushes()
	require.True(t, m.Connected())
	return s
}
