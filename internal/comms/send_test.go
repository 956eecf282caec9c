package comms

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/frontdesk/internal/cipher"
	"github.com/matheus3301/frontdesk/internal/store"
)

func TestSendsFailFastWhenNotConnected(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := newMockSocket(true)
	m.Attach(s)

	res, err := m.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "peer not connected", res.Error)

	res, err = m.SendPatientData(PatientTransfer{PatientID: 1})
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = m.SendFile(1, "/does/not/exist")
	require.NoError(t, err, "not connected wins over file errors")
	assert.False(t, res.Success)

	assert.Empty(t, s.emits)
	assert.Empty(t, st.messages)
}

func TestSendsBeforeAnyAttach(t *testing.T) {
	m, _, _ := newTestManager(t)
	res, err := m.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, ErrNotConnected.Error(), res.Error)
}

func TestSendMessageEncryptsAndStores(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := goLive(t, m)

	res, err := m.SendMessage(context.Background(), "room 2 is free")
	require.NoError(t, err)
	assert.True(t, res.Success)

	msgs := s.sent(EventMessage)
	require.Len(t, msgs, 1)
	c, _ := cipher.NewAES(testKey)
	pt, err := c.Decrypt(msgs[0].(string))
	require.NoError(t, err)
	assert.Equal(t, "room 2 is free", pt)

	require.Len(t, st.messages, 1)
	assert.Equal(t, "reception", st.messages[0].Sender)
}

func TestSendPatientDataEncryptsJSON(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := goLive(t, m)

	res, err := m.SendPatientData(PatientTransfer{PatientID: 4, PatientData: store.Patient{ID: 4, Name: "Eva"}})
	require.NoError(t, err)
	assert.True(t, res.Success)

	sent := s.sent(EventPatientData)
	require.Len(t, sent, 1)
	c, _ := cipher.NewAES(testKey)
	pt, err := c.Decrypt(sent[0].(string))
	require.NoError(t, err)
	assert.Contains(t, pt, `"patientId":4`)
	assert.Contains(t, pt, `"name":"Eva"`)
}

func TestSendFile(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := goLive(t, m)

	path := filepath.Join(t.TempDir(), "xray.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG data"), 0o600))

	res, err := m.SendFile(12, path)
	require.NoError(t, err)
	assert.True(t, res.Success)

	sent := s.sent(EventFileData)
	require.Len(t, sent, 1)
	env := sent[0].(FileData)
	assert.Equal(t, int64(12), env.PatientID)
	assert.Equal(t, "xray.png", env.FileName)
	assert.Equal(t, 9, env.FileSize)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("\x89PNG data")), env.FileData)
}

func TestSendFileReadFailureIsError(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := goLive(t, m)

	_, err := m.SendFile(1, filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, s.sent(EventFileData))
}

func TestSendEmitFailureIsError(t *testing.T) {
	m, st, _ := newTestManager(t)
	s := goLive(t, m)
	s.emitErr = errors.New("write: connection reset")

	_, err := m.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, st.messages)
}
