package arbiter

import (
	"sync"

	"github.com/ent0n29/socketrobot/internal/drive"
)

// Held is the set of directions a session currently holds down.
type Held uint8

func (h Held) Has(d drive.Direction) bool { return h&Held(d) != 0 }

func (h Held) with(d drive.Direction) Held    { return h | Held(d) }
func (h Held) without(d drive.Direction) Held { return h &^ Held(d) }

// Directions lists the held directions in a stable order.
func (h Held) Directions() []drive.Direction {
	out := make([]drive.Direction, 0, 4)
	for _, d := range drive.AllDirections {
		if h.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// HeldState is the JSON view of a held set.
type HeldState struct {
	Forward  bool `json:"forward"`
	Backward bool `json:"backward"`
	Left     bool `json:"left"`
	Right    bool `json:"right"`
}

func (h Held) State() HeldState {
	return HeldState{
		Forward:  h.Has(drive.Forward),
		Backward: h.Has(drive.Backward),
		Left:     h.Has(drive.Left),
		Right:    h.Has(drive.Right),
	}
}

// Arbiter folds the held inputs of every session into one DriveVector.
//
// Each axis is a majority vote across sessions: throttle is the sign of
// (sessions holding forward - sessions holding backward) and turn the sign of
// (right - left). Opposing operators cancel to neutral. The fold only depends
// on the per-session sets, so the interleaving of events from different
// sessions does not change the result.
type Arbiter struct {
	mu      sync.Mutex
	held    map[string]Held
	current drive.DriveVector
}

func New() *Arbiter {
	return &Arbiter{held: make(map[string]Held)}
}

// Apply folds one event into the session's held set. It reports whether the
// authoritative vector changed.
func (a *Arbiter) Apply(ev drive.InputEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.held[ev.SessionID]
	next := prev
	switch {
	case ev.Code == drive.CodeStop:
		next = 0
	case ev.Kind.Pressed():
		if d, ok := ev.Code.Direction(); ok {
			next = prev.with(d)
		}
	case ev.Kind.Released():
		if d, ok := ev.Code.Direction(); ok {
			next = prev.without(d)
		}
	}
	if next == prev {
		if _, ok := a.held[ev.SessionID]; !ok {
			a.held[ev.SessionID] = next
		}
		return false
	}
	a.held[ev.SessionID] = next
	return a.refold()
}

// RemoveSession drops the session's contribution before refolding.
func (a *Arbiter) RemoveSession(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.held[sessionID]; !ok {
		return false
	}
	delete(a.held, sessionID)
	return a.refold()
}

// ReleaseAll empties every session's held set; sessions stay registered.
func (a *Arbiter) ReleaseAll() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range a.held {
		a.held[id] = 0
	}
	return a.refold()
}

// Current returns the authoritative vector. It never blocks on anything but
// the arbiter's own short critical section.
func (a *Arbiter) Current() drive.DriveVector {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HeldBy returns the session's held set; unknown sessions hold nothing.
func (a *Arbiter) HeldBy(sessionID string) Held {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held[sessionID]
}

// Sessions returns the number of sessions with an entry.
func (a *Arbiter) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.held)
}

// refold must be called with mu held.
func (a *Arbiter) refold() bool {
	var fwd, back, left, right int
	for _, h := range a.held {
		if h.Has(drive.Forward) {
			fwd++
		}
		if h.Has(drive.Backward) {
			back++
		}
		if h.Has(drive.Left) {
			left++
		}
		if h.Has(drive.Right) {
			right++
		}
	}
	next := drive.DriveVector{
		Throttle: sign(fwd - back),
		Turn:     sign(right - left),
	}
	changed := next != a.current
	a.current = next
	return changed
}

func sign(n int) float64 {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}
