package sessionstore

import "time"

// Event type tags published on the bus for store-level operations, one
// per session the operation touched.
const (
	EventSessionDeleted  = "session_deleted"
	EventSessionRestored = "session_restored"
)

// DeletedPayload accompanies EventSessionDeleted (garbage collection).
type DeletedPayload struct {
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RestoredPayload accompanies EventSessionRestored.
type RestoredPayload struct {
	SessionID string `json:"session_id"`
	FromDir   string `json:"from_dir"`
}
