package telemetry

import (
	"context"
	"time"
)

// Kind classifies a journal record.
type Kind string

const (
	KindSessionOpened     Kind = "session_opened"
	KindSessionClosed     Kind = "session_closed"
	KindSessionEvicted    Kind = "session_evicted"
	KindSessionRejected   Kind = "session_rejected"
	KindWatchdogTripped   Kind = "watchdog_tripped"
	KindWatchdogRecovered Kind = "watchdog_recovered"
	KindDriverError       Kind = "driver_error"
	KindEmergencyStop     Kind = "emergency_stop"
)

// Record is one safety-relevant occurrence.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves journal records.
type Store interface {
	Append(ctx context.Context, record Record) error
	// Recent returns up to limit records, newest last.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
