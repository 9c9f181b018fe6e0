package watchdog

import (
	"sync"
	"time"
)

// State is the failsafe state machine position.
type State string

const (
	// StateArmed means no input has ever been observed.
	StateArmed State = "armed"
	// StateActive means input arrived within the timeout.
	StateActive State = "active"
	// StateTripped means the timeout elapsed with no input from any session.
	StateTripped State = "tripped"
)

const DefaultTimeout = 500 * time.Millisecond

// Snapshot is the read-only view of the watchdog.
type Snapshot struct {
	State          State     `json:"state"`
	LastAnyInputAt time.Time `json:"last_any_input_at"`
	Trips          int       `json:"trips"`
}

// Watchdog tracks the most recent input across all sessions. It never
// blocks: the timeout is evaluated when Poll is called.
type Watchdog struct {
	mu        sync.Mutex
	timeout   time.Duration
	state     State
	lastInput time.Time
	trips     int
	polled    State
}

func New(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watchdog{timeout: timeout, state: StateArmed, polled: StateArmed}
}

func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// Observe records fresh input. Tripped and Armed both return to Active.
// Timestamps older than the last observed one do not move it backwards.
func (w *Watchdog) Observe(at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if at.After(w.lastInput) {
		w.lastInput = at
	}
	w.state = StateActive
}

// Poll evaluates the timeout at now. It returns the resulting state and
// whether that state differs from the one returned by the previous Poll, so
// a caller sees each transition exactly once.
func (w *Watchdog) Poll(now time.Time) (State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateActive && now.Sub(w.lastInput) > w.timeout {
		w.state = StateTripped
		w.trips++
	}
	changed := w.state != w.polled
	w.polled = w.state
	return w.state, changed
}

// Snapshot returns the current state without evaluating the timeout.
func (w *Watchdog) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{State: w.state, LastAnyInputAt: w.lastInput, Trips: w.trips}
}
