package watchdog

import (
	"testing"
	"time"
)

func TestWatchdogStateMachine(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := New(500 * time.Millisecond)

	if st, changed := w.Poll(base.Add(10 * time.Second)); st != StateArmed || changed {
		t.Fatalf("Poll() before input = %q, %v; want armed, false", st, changed)
	}

	w.Observe(base)
	if st, changed := w.Poll(base.Add(100 * time.Millisecond)); st != StateActive || !changed {
		t.Fatalf("Poll() after input = %q, %v; want active, true", st, changed)
	}
	if st, changed := w.Poll(base.Add(500 * time.Millisecond)); st != StateActive || changed {
		t.Fatalf("Poll() at exactly the timeout = %q, %v; want active, false", st, changed)
	}

	st, changed := w.Poll(base.Add(501 * time.Millisecond))
	if st != StateTripped || !changed {
		t.Fatalf("Poll() past the timeout = %q, %v; want tripped, true", st, changed)
	}
	if st, changed := w.Poll(base.Add(2 * time.Second)); st != StateTripped || changed {
		t.Fatalf("second tripped Poll() = %q, %v; want tripped, false", st, changed)
	}

	w.Observe(base.Add(3 * time.Second))
	if st, changed := w.Poll(base.Add(3 * time.Second)); st != StateActive || !changed {
		t.Fatalf("Poll() after fresh input = %q, %v; want active, true", st, changed)
	}
	if got := w.Snapshot().Trips; got != 1 {
		t.Fatalf("Trips = %d, want 1", got)
	}
}

func TestWatchdogIgnoresStaleTimestamps(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := New(time.Second)
	w.Observe(base.Add(time.Second))
	w.Observe(base)
	if got := w.Snapshot().LastAnyInputAt; !got.Equal(base.Add(time.Second)) {
		t.Fatalf("LastAnyInputAt = %v, want %v", got, base.Add(time.Second))
	}
}

func TestWatchdogDefaultsTimeout(t *testing.T) {
	if got := New(0).Timeout(); got != DefaultTimeout {
		t.Fatalf("Timeout() = %v, want %v", got, DefaultTimeout)
	}
}
