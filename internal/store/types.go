package store

import "encoding/json"

// Patient statuses used by the front desk queue.
const (
	StatusScheduled  = "scheduled"
	StatusWaiting    = "waiting"
	StatusWithDoctor = "with_doctor"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// ValidStatus reports whether s is one of the queue statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusScheduled, StatusWaiting, StatusWithDoctor, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// TimestampLayout is the local-time layout of patients.created_at/updated_at.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the layout of appointments.date.
const DateLayout = "2006-01-02"

// Patient is a patient record at the front desk.
type Patient struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Age           int    `json:"age"`
	Gender        string `json:"gender"`
	Phone         string `json:"phone,omitempty"`
	Address       string `json:"address,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Status        string `json:"status"`
	HasBeenEdited Flag   `json:"hasBeenEdited"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`

	// AppointmentTime is only populated by TodayPatients: the earliest
	// appointment time for the requested day, if any.
	AppointmentTime *string `json:"appointmentTime,omitempty"`
}

// UnmarshalJSON reads age leniently: peers built on loosely typed forms send
// it as a string as often as a number.
func (p *Patient) UnmarshalJSON(data []byte) error {
	type plain Patient
	aux := struct {
		*plain
		Age looseInt `json:"age"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Age = int(aux.Age)
	return nil
}

// Appointment is a scheduled visit. PatientID is zero for unlinked bookings.
type Appointment struct {
	ID          int64  `json:"id"`
	PatientID   int64  `json:"patient_id,omitempty"`
	PatientName string `json:"patient_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Message is a stored chat line exchanged with the doctor.
type Message struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// NewMessage is the input to AddMessage.
type NewMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// MessageInsert reports the outcome of AddMessage. Duplicate inserts return
// the original row's ID.
type MessageInsert struct {
	ID        int64
	Duplicate bool
}
