package comms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/status"
	"github.com/matheus3301/frontdesk/internal/store"
)

type identifyPayload struct {
	Identity
	Timestamp string `json:"timestamp"`
}

func (m *Manager) onTransportConnect(gen uint64, _ Event) {
	s := m.current()
	if s != nil {
		payload := identifyPayload{
			Identity:  m.identity,
			Timestamp: m.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		}
		err := s.Emit(EventClientConnect, payload)
		if err != nil {
			m.logger.Warn("identify failed", zap.Error(err))
		}
		m.metrics.EventSent(EventClientConnect, err == nil)
	}
	m.recompute(gen)
}

func (m *Manager) onTransportDisconnect(gen uint64, _ Event) {
	m.recompute(gen)
}

func (m *Manager) onPresence(gen uint64, evt Event) {
	var p struct {
		Online any `json:"online"`
	}
	if err := json.Unmarshal(evt.Data, &p); err != nil {
		m.logger.Warn("bad presence payload", zap.ByteString("data", evt.Data), zap.Error(err))
		return
	}
	online := store.Truthy(p.Online)
	m.logger.Debug("doctor presence", zap.Bool("online", online))
	m.commit(gen, func(transport bool) status.Change {
		return m.tracker.SetPresence(online, transport)
	})
}

func (m *Manager) onNewMessage(evt Event) {
	var msg store.NewMessage
	if err := m.decodePayload(evt.Data, &msg); err != nil {
		m.logger.Warn("dropping malformed message", zap.Error(err))
		return
	}

	res, err := m.store.AddMessage(context.Background(), msg)
	if err != nil {
		m.logger.Error("store message", zap.String("sender", msg.Sender), zap.Error(err))
		return
	}
	m.logger.Debug("message stored",
		zap.Int64("id", res.ID),
		zap.String("sender", msg.Sender),
		zap.Bool("duplicate", res.Duplicate),
	)
	m.bus.Emit(bus.RemoteMessage, store.Message{
		ID:        res.ID,
		Sender:    msg.Sender,
		Message:   msg.Message,
		Timestamp: m.Now().UnixMilli(),
	})
}

func (m *Manager) onPatientData(evt Event) {
	var env struct {
		Patient *store.Patient `json:"patient"`
	}
	if err := m.decodePayload(evt.Data, &env); err != nil {
		m.logger.Warn("dropping malformed patient data", zap.Error(err))
		return
	}
	if env.Patient == nil {
		m.logger.Warn("patient data without patient")
		return
	}

	p := env.Patient
	p.ID = 0
	id, err := m.store.AddPatient(context.Background(), p)
	if err != nil {
		m.logger.Error("store incoming patient", zap.String("name", p.Name), zap.Error(err))
		return
	}
	p.ID = id
	m.logger.Info("patient received from doctor", zap.Int64("id", id), zap.String("name", p.Name))
	m.bus.Emit(bus.RemotePatient, *p)
}

func (m *Manager) onAny(evt Event) {
	m.metrics.EventReceived(evt.Name)
	m.logger.Debug("socket event", zap.String("event", evt.Name))
}

// decodePayload unmarshals data into v. A JSON string is taken as ciphertext
// and decrypted first; an object is read as-is.
func (m *Manager) decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	raw := []byte(data)
	if data[0] == '"' {
		var ct string
		if err := json.Unmarshal(data, &ct); err != nil {
			return fmt.Errorf("read ciphertext: %w", err)
		}
		pt, err := m.cipher.Decrypt(ct)
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
		raw = []byte(pt)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}
