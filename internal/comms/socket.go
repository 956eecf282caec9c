package comms

import "encoding/json"

// Inbound event names bound on every attached socket.
const (
	EventConnect        = "connect"
	EventDisconnect     = "disconnect"
	EventDoctorPresence = "doctorPresence"
	EventNewMessage     = "new-message"
	EventPatientData    = "patient-data"
	EventAny            = "*"
)

// Outbound event names.
const (
	EventClientConnect = "clientAppConnect"
	EventMessage       = "message"
	EventFileData      = "file:data"
)

// Event is a named socket event with its raw JSON payload.
type Event struct {
	Name string
	Data json.RawMessage
}

// Handler receives events from a socket. Handlers run on the socket's
// dispatch goroutine, one at a time.
type Handler func(Event)

// Socket is an event socket borrowed from the network owner. The manager binds
// and unbinds listeners on it but never closes it.
type Socket interface {
	Connected() bool
	Emit(event string, payload any) error
	On(event string, h Handler)
	Off(event string)
}
