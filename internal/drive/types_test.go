package drive

import (
	"math"
	"testing"
)

func TestMixDifferentialDrive(t *testing.T) {
	tests := []struct {
		name string
		in   DriveVector
		want WheelSpeeds
	}{
		{name: "neutral", in: DriveVector{}, want: WheelSpeeds{}},
		{name: "forward", in: DriveVector{Throttle: 1}, want: WheelSpeeds{Left: 1, Right: 1}},
		{name: "backward", in: DriveVector{Throttle: -1}, want: WheelSpeeds{Left: -1, Right: -1}},
		{name: "spin right", in: DriveVector{Turn: 1}, want: WheelSpeeds{Left: 1, Right: -1}},
		{name: "spin left", in: DriveVector{Turn: -1}, want: WheelSpeeds{Left: -1, Right: 1}},
		{name: "forward right clamps left", in: DriveVector{Throttle: 1, Turn: 1}, want: WheelSpeeds{Left: 1, Right: 0}},
		{name: "forward left clamps right", in: DriveVector{Throttle: 1, Turn: -1}, want: WheelSpeeds{Left: 0, Right: 1}},
		{name: "backward right", in: DriveVector{Throttle: -1, Turn: 1}, want: WheelSpeeds{Left: 0, Right: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mix(tt.in); got != tt.want {
				t.Fatalf("Mix(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClampRejectsNaN(t *testing.T) {
	if got := Clamp(math.NaN()); got != 0 {
		t.Fatalf("Clamp(NaN) = %v, want 0", got)
	}
	if got := Clamp(math.Inf(1)); got != 1 {
		t.Fatalf("Clamp(+Inf) = %v, want 1", got)
	}
	if got := Clamp(-0.25); got != -0.25 {
		t.Fatalf("Clamp(-0.25) = %v, want -0.25", got)
	}
}

func TestCodeDirection(t *testing.T) {
	if d, ok := CodeForward.Direction(); !ok || d != Forward {
		t.Fatalf("CodeForward.Direction() = %v, %v", d, ok)
	}
	if _, ok := CodeStop.Direction(); ok {
		t.Fatalf("CodeStop should not map to a direction")
	}
	if _, ok := CodeNone.Direction(); ok {
		t.Fatalf("CodeNone should not map to a direction")
	}
}
