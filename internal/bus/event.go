package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by namespace prefix ("link.", "patient.", ...).
const (
	LinkStatusChanged = "link.status_changed"
	LinkDashboardSent = "link.dashboard_pushed"

	RemoteMessage = "remote.message_received"
	RemotePatient = "remote.patient_received"

	PatientAdded         = "patient.added"
	PatientStatusChanged = "patient.status_changed"
	AppointmentAdded     = "appointment.added"

	BackupCreated  = "backup.created"
	BackupRestored = "backup.restored"
)
