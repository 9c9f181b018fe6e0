package motor

import (
	"log"
	"sync"

	"github.com/ent0n29/socketrobot/internal/drive"
)

// MockDriver records every call. It is used when no hardware is attached and
// never fails.
type MockDriver struct {
	mu    sync.Mutex
	calls []drive.WheelSpeeds
	last  drive.WheelSpeeds
	count int
	quiet bool
}

// mockHistory bounds how many calls a mock keeps for inspection.
const mockHistory = 1024

func NewMockDriver() *MockDriver { return &MockDriver{} }

// NewQuietMockDriver returns a mock that does not log each call.
func NewQuietMockDriver() *MockDriver { return &MockDriver{quiet: true} }

func (d *MockDriver) SetWheelSpeeds(left, right float64) error {
	speeds := drive.WheelSpeeds{Left: drive.Clamp(left), Right: drive.Clamp(right)}

	d.mu.Lock()
	changed := d.count == 0 || speeds != d.last
	if len(d.calls) == mockHistory {
		d.calls = append(d.calls[:0], d.calls[1:]...)
	}
	d.calls = append(d.calls, speeds)
	d.last = speeds
	d.count++
	d.mu.Unlock()

	if changed && !d.quiet {
		log.Printf("motor: [mock] left=%+.2f right=%+.2f", speeds.Left, speeds.Right)
	}
	return nil
}

// Calls returns a copy of the most recent commands, oldest first.
func (d *MockDriver) Calls() []drive.WheelSpeeds {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]drive.WheelSpeeds(nil), d.calls...)
}

// Last returns the most recent command and whether any was received.
func (d *MockDriver) Last() (drive.WheelSpeeds, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.count > 0
}

func (d *MockDriver) Close() error { return nil }
