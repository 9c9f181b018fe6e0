package session

import (
	"time"

	"github.com/ent0n29/socketrobot/internal/drive"
)

// EndReason says why a session went away.
type EndReason string

const (
	EndClosed  EndReason = "closed"
	EndEvicted EndReason = "evicted"
)

// Sink receives the events recorded for live sessions. Implementations must
// not block: Apply and Release run while the session's lock is held.
type Sink interface {
	Apply(ev drive.InputEvent)
	// Release drops every input the session still holds. It is the implicit
	// "all keys released" event emitted when a session ends.
	Release(sessionID string)
}

// Info is a copy of a session's public fields.
type Info struct {
	ID          string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
	LastEventAt time.Time `json:"last_event_at"`
	Events      int       `json:"events"`
}
