package comms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/store"
)

// Result is the outcome of a send. A send while not connected is a Result
// with Success false, not an error.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func notConnected() Result {
	return Result{Error: ErrNotConnected.Error()}
}

// PatientTransfer is the envelope forwarded to the clinician as patient-data.
type PatientTransfer struct {
	PatientID   int64         `json:"patientId"`
	PatientData store.Patient `json:"patientData"`
	Files       []FileRef     `json:"files,omitempty"`
}

// FileRef names a file attached to a patient transfer.
type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FileData is the plaintext file:data envelope.
type FileData struct {
	PatientID int64  `json:"patientId"`
	FileName  string `json:"fileName"`
	FileData  string `json:"fileData"`
	FileSize  int    `json:"fileSize"`
}

// SendMessage encrypts text and emits it as a message event, then records it
// locally under the desk's client type.
func (m *Manager) SendMessage(ctx context.Context, text string) (Result, error) {
	if !m.Connected() {
		return notConnected(), nil
	}
	ct, err := m.cipher.Encrypt(text)
	if err != nil {
		return Result{}, fmt.Errorf("encrypt message: %w", err)
	}
	if err := m.emit(EventMessage, ct); err != nil {
		return Result{}, err
	}

	sender := m.identity.ClientType
	if _, err := m.store.AddMessage(ctx, store.NewMessage{Sender: sender, Message: text}); err != nil {
		m.logger.Warn("store sent message", zap.Error(err))
	}
	return Result{Success: true}, nil
}

// SendPatientData encrypts payload as JSON and emits it as patient-data.
func (m *Manager) SendPatientData(payload any) (Result, error) {
	if !m.Connected() {
		return notConnected(), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal patient data: %w", err)
	}
	ct, err := m.cipher.Encrypt(string(raw))
	if err != nil {
		return Result{}, fmt.Errorf("encrypt patient data: %w", err)
	}
	if err := m.emit(EventPatientData, ct); err != nil {
		return Result{}, err
	}
	return Result{Success: true}, nil
}

// SendFile reads path from disk and emits it base64-encoded as file:data.
// A read failure is returned as an error.
func (m *Manager) SendFile(patientID int64, path string) (Result, error) {
	if !m.Connected() {
		return notConnected(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}
	env := FileData{
		PatientID: patientID,
		FileName:  filepath.Base(path),
		FileData:  base64.StdEncoding.EncodeToString(data),
		FileSize:  len(data),
	}
	if err := m.emit(EventFileData, env); err != nil {
		return Result{}, err
	}
	m.logger.Info("file sent", zap.Int64("patient_id", patientID), zap.String("file", env.FileName), zap.Int("bytes", env.FileSize))
	return Result{Success: true}, nil
}

func (m *Manager) emit(event string, payload any) error {
	err := m.Emit(event, payload)
	m.metrics.EventSent(event, err == nil)
	if err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}
