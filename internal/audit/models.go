package audit

import "time"

// Event is emitted from session logic to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Timestamp time.Time
	UserID    string
	Action    string
	Reason    string
	Decision  string
}

type AuditEvent string

const (
	EventSignedIn           AuditEvent = "signed_in"
	EventSessionTornDown    AuditEvent = "session_torn_down"
	EventBackendUnreachable AuditEvent = "backend_unreachable"
)
