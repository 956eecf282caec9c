// Package dashboard builds the aggregate patient views pushed to the doctor
// application when the link goes live or the local queue changes.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/cipher"
	"github.com/matheus3301/frontdesk/internal/metrics"
	"github.com/matheus3301/frontdesk/internal/store"
)

// NotConnected is the Error text of a push attempted while the link is not live.
const NotConnected = "not connected"

// Source is the read side of the patient store.
type Source interface {
	TodayPatients(ctx context.Context, day time.Time) ([]store.Patient, error)
	Appointments(ctx context.Context) ([]store.Appointment, error)
	AllPatients(ctx context.Context) ([]store.Patient, error)
}

// Peer gates and carries the pushes.
type Peer interface {
	Connected() bool
	Emit(event string, payload any) error
}

// Aggregator computes dashboard snapshots and emits them encrypted.
type Aggregator struct {
	src     Source
	peer    Peer
	cipher  cipher.Cipher
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger

	// Now is the clock; "today" is its local calendar date.
	Now func() time.Time
}

// NewAggregator wires an aggregator. bus and metrics may be nil.
func NewAggregator(src Source, peer Peer, c cipher.Cipher, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		src:     src,
		peer:    peer,
		cipher:  c,
		bus:     b,
		metrics: m,
		logger:  logger,
		Now:     time.Now,
	}
}

// PushOnConnection builds a fresh snapshot and emits dashboard-status and
// waiting-patients. It never returns an error; failures are reported in the result.
func (a *Aggregator) PushOnConnection(ctx context.Context) PushResult {
	if !a.peer.Connected() {
		return PushResult{Error: NotConnected}
	}

	now := a.Now()
	snap, waiting, err := a.Build(ctx, now)
	if err != nil {
		a.logger.Warn("dashboard build failed", zap.Error(err))
		a.metrics.DashboardPush(false)
		return PushResult{Error: err.Error()}
	}

	// The fetches above can outlive the link.
	if !a.peer.Connected() {
		a.logger.Debug("link dropped during dashboard build, push aborted")
		return PushResult{Error: NotConnected}
	}

	errStatus := a.send(EventDashboardStatus, snap)
	errWaiting := a.send(EventWaitingPatients, waiting)
	if err := errors.Join(errStatus, errWaiting); err != nil {
		a.metrics.DashboardPush(false)
		return PushResult{Error: err.Error(), Data: snap}
	}

	a.metrics.DashboardPush(true)
	a.bus.Emit(bus.LinkDashboardSent, snap)
	a.logger.Info("dashboard pushed",
		zap.Int("today", snap.TodayPatientsCount),
		zap.Int("week", snap.WeekPatientsCount),
		zap.Int("waiting", snap.WaitingPatientsCount),
	)
	return PushResult{Success: true, Data: snap}
}

func (a *Aggregator) send(event string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("marshal push payload", zap.String("event", event), zap.Error(err))
		return fmt.Errorf("%s: %w", event, err)
	}
	ct, err := a.cipher.Encrypt(string(raw))
	if err != nil {
		a.logger.Error("encrypt push payload", zap.String("event", event), zap.Error(err))
		return fmt.Errorf("%s: %w", event, err)
	}
	if err := a.peer.Emit(event, ct); err != nil {
		a.logger.Warn("emit push payload", zap.String("event", event), zap.Error(err))
		return fmt.Errorf("%s: %w", event, err)
	}
	return nil
}

// Build computes both views for the calendar day of now without sending anything.
func (a *Aggregator) Build(ctx context.Context, now time.Time) (*Snapshot, *WaitingPayload, error) {
	today, err := a.src.TodayPatients(ctx, now)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch today patients: %w", err)
	}
	appts, err := a.src.Appointments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch appointments: %w", err)
	}
	all, err := a.src.AllPatients(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch patients: %w", err)
	}

	todayDate := now.Format(store.DateLayout)
	firstSlot := make(map[int64]string)
	for _, ap := range appts {
		if ap.Date != todayDate || ap.PatientID == 0 {
			continue
		}
		if cur, ok := firstSlot[ap.PatientID]; !ok || ap.Time < cur {
			firstSlot[ap.PatientID] = ap.Time
		}
	}
	slot := func(p store.Patient) *string {
		if p.AppointmentTime != nil {
			return p.AppointmentTime
		}
		if t, ok := firstSlot[p.ID]; ok {
			return &t
		}
		return nil
	}

	ts := isoTimestamp(now)
	snap := &Snapshot{
		Timestamp:           ts,
		TodayPatientsCount:  len(today),
		WeekPatientsCount:   WeekCount(WeekOf(now), appts, all),
		WaitingPatientsList: make([]PatientEntry, 0),
		TodayPatientsList:   make([]PatientEntry, 0, len(today)),
	}
	waiting := &WaitingPayload{Timestamp: ts, WaitingPatients: make([]WaitingEntry, 0)}

	for _, p := range today {
		entry := PatientEntry{
			ID:              p.ID,
			Name:            p.Name,
			Age:             p.Age,
			Gender:          p.Gender,
			AppointmentTime: slot(p),
			Status:          p.Status,
		}
		snap.TodayPatientsList = append(snap.TodayPatientsList, entry)
		if IsWaiting(p) {
			snap.WaitingPatientsList = append(snap.WaitingPatientsList, entry)
			waiting.WaitingPatients = append(waiting.WaitingPatients, WaitingEntry{
				ID:              p.ID,
				Name:            p.Name,
				AppointmentTime: entry.AppointmentTime,
			})
		}
	}
	snap.WaitingPatientsCount = len(snap.WaitingPatientsList)
	waiting.WaitingCount = len(waiting.WaitingPatients)
	return snap, waiting, nil
}

// IsWaiting reports whether p belongs in the waiting queue shown to the doctor:
// status waiting and already touched at the desk.
func IsWaiting(p store.Patient) bool {
	return p.Status == store.StatusWaiting && bool(p.HasBeenEdited)
}

// WeekCount counts distinct patients that either have an appointment inside w
// or are waiting with a last-touched timestamp inside w.
func WeekCount(w Week, appts []store.Appointment, patients []store.Patient) int {
	loc := w.Start.Location()
	seen := make(map[int64]struct{})
	for _, ap := range appts {
		if ap.PatientID == 0 {
			continue
		}
		d, err := time.ParseInLocation(store.DateLayout, ap.Date, loc)
		if err != nil || !w.Contains(d) {
			continue
		}
		seen[ap.PatientID] = struct{}{}
	}
	for _, p := range patients {
		if p.Status != store.StatusWaiting {
			continue
		}
		if t, ok := lastTouched(p, loc); ok && w.Contains(t) {
			seen[p.ID] = struct{}{}
		}
	}
	return len(seen)
}
