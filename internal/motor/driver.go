package motor

import (
	"fmt"
)

// Driver is the capability boundary to the wheels. Speeds are normalized to
// [-1,1]; implementations clamp out-of-range input.
type Driver interface {
	SetWheelSpeeds(left, right float64) error
	Close() error
}

// Kind names a driver variant for status output.
type Kind string

const (
	KindMock Kind = "mock"
	KindPWM  Kind = "pwm"
)

// DriverError reports a failed actuation. After a DriverError the true motor
// state is unknown.
type DriverError struct {
	Op    string
	Left  float64
	Right float64
	Err   error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("motor %s (left=%.2f right=%.2f): %v", e.Op, e.Left, e.Right, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }
