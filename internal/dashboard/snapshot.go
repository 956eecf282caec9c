package dashboard

import (
	"time"

	"github.com/matheus3301/frontdesk/internal/store"
)

// Wire event names for the two pushed views.
const (
	EventDashboardStatus = "dashboard-status"
	EventWaitingPatients = "waiting-patients"
)

// PatientEntry is one row of the today and waiting lists in a Snapshot.
type PatientEntry struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Age             int     `json:"age"`
	Gender          string  `json:"gender"`
	AppointmentTime *string `json:"appointmentTime"`
	Status          string  `json:"status"`
}

// Snapshot is the aggregate view sent as dashboard-status.
type Snapshot struct {
	Timestamp            string         `json:"timestamp"`
	TodayPatientsCount   int            `json:"todayPatientsCount"`
	WeekPatientsCount    int            `json:"weekPatientsCount"`
	WaitingPatientsCount int            `json:"waitingPatientsCount"`
	WaitingPatientsList  []PatientEntry `json:"waitingPatientsList"`
	TodayPatientsList    []PatientEntry `json:"todayPatientsList"`
}

// WaitingEntry is one row of a WaitingPayload.
type WaitingEntry struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	AppointmentTime *string `json:"appointmentTime"`
}

// WaitingPayload is the waiting-queue view sent as waiting-patients.
type WaitingPayload struct {
	Timestamp       string         `json:"timestamp"`
	WaitingCount    int            `json:"waitingCount"`
	WaitingPatients []WaitingEntry `json:"waitingPatients"`
}

// PushResult is what PushOnConnection reports. Data is set whenever a
// snapshot was built, even if one of the emits failed.
type PushResult struct {
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
	Data    *Snapshot `json:"data,omitempty"`
}

// isoTimestamp renders t the way a JavaScript Date.toISOString would.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Week is an inclusive, date-only window.
type Week struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the Sunday-to-Saturday window containing day, in day's location.
func WeekOf(day time.Time) Week {
	d := dateOnly(day)
	start := d.AddDate(0, 0, -int(d.Weekday()))
	return Week{Start: start, End: start.AddDate(0, 0, 6)}
}

// Contains reports whether t's calendar date lies within the window.
func (w Week) Contains(t time.Time) bool {
	d := dateOnly(t.In(w.Start.Location()))
	return !d.Before(w.Start) && !d.After(w.End)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// lastTouched returns updated_at, falling back to created_at when updated_at
// is empty or unparsable.
func lastTouched(p store.Patient, loc *time.Location) (time.Time, bool) {
	if t, ok := parseStamp(p.UpdatedAt, loc); ok {
		return t, true
	}
	return parseStamp(p.CreatedAt, loc)
}

var stampLayouts = []string{
	store.TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	store.DateLayout,
}

func parseStamp(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range stampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
