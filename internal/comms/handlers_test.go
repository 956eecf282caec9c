package comms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessagePlainObject(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := newMockSocket(true)
	m.Attach(s)

	s.fire(EventNewMessage, `{"sender":"doctor","message":"send the next one"}`)
	require.Len(t, st.messages, 1)
	assert.Equal(t, "doctor", st.messages[0].Sender)
	assert.Equal(t, "send the next one", st.messages[0].Message)
}

func TestNewMessageCiphertext(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := newMockSocket(true)
	m.Attach(s)

	s.fire(EventNewMessage, encrypt(t, `{"sender":"doctor","message":"lunch break"}`))
	require.Len(t, st.messages, 1)
	assert.Equal(t, "lunch break", st.messages[0].Message)
}

func TestNewMessageMalformedIsDropped(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := newMockSocket(true)
	m.Attach(s)

	s.fire(EventNewMessage, `"not-a-ciphertext"`)
	s.fire(EventNewMessage, `[1,2]`)
	s.fire(EventNewMessage, ``)
	assert.Empty(t, st.messages)
}

func TestPatientDataInserts(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := newMockSocket(true)
	m.Attach(s)

	s.fire(EventPatientData, encrypt(t, `{"patient":{"id":99,"name":"Dora","age":52,"gender":"F","status":"waiting","hasBeenEdited":1}}`))
	require.Equal(t, 1, st.patientCount())
	p := st.patients[0]
	assert.Equal(t, "Dora", p.Name)
	assert.Zero(t, p.ID, "remote ids are not reused")
	assert.True(t, bool(p.HasBeenEdited))
}

func TestPatientDataAcceptsStringAge(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := newMockSocket(true)
	m.Attach(s)

	s.fire(EventPatientData, encrypt(t, `{"patient":{"name":"Eva","age":"42","status":"waiting"}}`))
	require.Equal(t, 1, st.patientCount())
	assert.Equal(t, 42, st.patients[0].Age)
}

func TestPatientDataMalformedNeverInserts(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := newMockSocket(true)
	m.Attach(s)

	payloads := []string{
		encrypt(t, `{not json`),
		encrypt(t, `{"other":{}}`),
		encrypt(t, `{"patient":null}`),
		`"U2FsdGVkX1garbage"`,
		`12`,
	}
	for _, p := range payloads {
		assert.NotPanics(t, func() { s.fire(EventPatientData, p) })
	}
	assert.Zero(t, st.patientCount())
	assert.Len(t, s.handlers, 6, "bad payloads must not unbind listeners")
}

func TestHandlerPanicIsContained(t *testing.T) {
	m, st, _ := newTestManager(t)
	st.panicOn = true
	s := newMockSocket(true)
	m.Attach(s)

	assert.NotPanics(t, func() {
		s.fire(EventNewMessage, `{"sender":"doctor","message":"boom"}`)
	})

	st.panicOn = false
	s.fire(EventNewMessage, `{"sender":"doctor","message":"after"}`)
	require.Len(t, st.messages, 1)
	assert.Equal(t, "after", st.messages[0].Message)
}

func TestBadPresencePayloadKeepsState(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := goLive(t, m)

	s.fire(EventDoctorPresence, `not json`)
	assert.True(t, m.Connected())

	raw, _ := json.Marshal(m.Status())
	assert.JSONEq(t, `{"isConnected":true,"connectedClients":1}`, string(raw))
}
