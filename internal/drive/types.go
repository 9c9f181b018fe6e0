package drive

import (
	"math"
	"time"
)

// Direction is one of the four directional inputs an operator can hold.
type Direction uint8

const (
	Forward Direction = 1 << iota
	Backward
	Left
	Right
)

// AllDirections lists every held-able direction in a stable order.
var AllDirections = []Direction{Forward, Backward, Left, Right}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// Code is the payload of an InputEvent: a direction, an explicit stop, or
// nothing (heartbeats).
type Code string

const (
	CodeNone     Code = ""
	CodeForward  Code = "forward"
	CodeBackward Code = "backward"
	CodeLeft     Code = "left"
	CodeRight    Code = "right"
	CodeStop     Code = "stop"
)

// Direction returns the direction a code refers to, if any.
func (c Code) Direction() (Direction, bool) {
	switch c {
	case CodeForward:
		return Forward, true
	case CodeBackward:
		return Backward, true
	case CodeLeft:
		return Left, true
	case CodeRight:
		return Right, true
	default:
		return 0, false
	}
}

type EventKind string

const (
	KindKeyDown       EventKind = "key_down"
	KindKeyUp         EventKind = "key_up"
	KindButtonPress   EventKind = "button_press"
	KindButtonRelease EventKind = "button_release"
	KindHeartbeat     EventKind = "heartbeat"
)

// Pressed reports whether the kind marks an input going logically down.
func (k EventKind) Pressed() bool {
	return k == KindKeyDown || k == KindButtonPress
}

// Released reports whether the kind marks an input going logically up.
func (k EventKind) Released() bool {
	return k == KindKeyUp || k == KindButtonRelease
}

// InputEvent is one operator input transition. Values are never mutated once
// recorded.
type InputEvent struct {
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Code      Code      `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DriveVector is the normalized authoritative intent. Both components lie in [-1,1].
type DriveVector struct {
	Throttle float64 `json:"throttle"`
	Turn     float64 `json:"turn"`
}

// IsZero reports whether the vector requests no motion.
func (v DriveVector) IsZero() bool {
	return v.Throttle == 0 && v.Turn == 0
}

// WheelSpeeds is the only value handed to a motor driver.
type WheelSpeeds struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Stop is the all-zero wheel command.
var Stop = WheelSpeeds{}

// IsZero reports whether both wheels are commanded to stand still.
func (w WheelSpeeds) IsZero() bool {
	return w.Left == 0 && w.Right == 0
}

// Mix converts a drive vector to wheel speeds for a differential-drive base.
// Forward is positive on both wheels; a right turn speeds up the left wheel
// and slows the right one.
func Mix(v DriveVector) WheelSpeeds {
	return WheelSpeeds{
		Left:  Clamp(v.Throttle + v.Turn),
		Right: Clamp(v.Throttle - v.Turn),
	}
}

// Clamp limits v to [-1,1]. NaN maps to 0 so a driver never sees an
// undefined value.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
