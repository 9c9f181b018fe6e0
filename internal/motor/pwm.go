package motor

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/ent0n29/socketrobot/internal/drive"
)

// Pin is the subset of a periph GPIO output the PWM driver needs.
type Pin interface {
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
}

type wheel struct {
	name     string
	forward  Pin
	backward Pin
	invert   bool
}

// PWMDriver drives two H-bridge channels. For each wheel the pin opposite to
// the requested direction is pulled low before the other pin is modulated,
// so both inputs of a channel are never high at once.
type PWMDriver struct {
	mu    sync.Mutex
	left  wheel
	right wheel
	freq  physic.Frequency
}

// OpenPWMDriver initialises the host GPIO drivers and resolves the pins by
// name.
func OpenPWMDriver(cfg PinConfig) (*PWMDriver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	lookup := func(name string) (Pin, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("gpio pin %q not found", name)
		}
		return p, nil
	}
	pins := make([]Pin, 0, 4)
	for _, name := range []string{cfg.Left.Forward, cfg.Left.Backward, cfg.Right.Forward, cfg.Right.Backward} {
		p, err := lookup(name)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return NewPWMDriver(cfg, pins[0], pins[1], pins[2], pins[3])
}

// NewPWMDriver builds a driver on already resolved pins and leaves every pin low.
func NewPWMDriver(cfg PinConfig, leftFwd, leftBack, rightFwd, rightBack Pin) (*PWMDriver, error) {
	freq := cfg.PWMFrequency
	if freq <= 0 {
		freq = DefaultPinConfig().PWMFrequency
	}
	d := &PWMDriver{
		left:  wheel{name: "left", forward: leftFwd, backward: leftBack, invert: cfg.InvertLeft},
		right: wheel{name: "right", forward: rightFwd, backward: rightBack, invert: cfg.InvertRight},
		freq:  physic.Frequency(freq) * physic.Hertz,
	}
	if err := d.stopAll(); err != nil {
		return nil, &DriverError{Op: "init", Err: err}
	}
	return d, nil
}

func (d *PWMDriver) SetWheelSpeeds(left, right float64) error {
	left, right = drive.Clamp(left), drive.Clamp(right)

	d.mu.Lock()
	defer d.mu.Unlock()
	errLeft := d.apply(d.left, left)
	errRight := d.apply(d.right, right)
	if err := errors.Join(errLeft, errRight); err != nil {
		return &DriverError{Op: "set_wheel_speeds", Left: left, Right: right, Err: err}
	}
	return nil
}

// Close stops both wheels.
func (d *PWMDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.stopAll(); err != nil {
		return &DriverError{Op: "close", Err: err}
	}
	return nil
}

func (d *PWMDriver) stopAll() error {
	return errors.Join(d.apply(d.left, 0), d.apply(d.right, 0))
}

func (d *PWMDriver) apply(w wheel, speed float64) error {
	if w.invert {
		speed = -speed
	}
	active, idle := w.forward, w.backward
	if speed < 0 {
		active, idle = w.backward, w.forward
	}
	if err := idle.Out(gpio.Low); err != nil {
		return fmt.Errorf("%s wheel idle pin: %w", w.name, err)
	}
	duty := DutyFor(speed)
	if duty == 0 {
		if err := active.Out(gpio.Low); err != nil {
			return fmt.Errorf("%s wheel active pin: %w", w.name, err)
		}
		return nil
	}
	if err := active.PWM(duty, d.freq); err != nil {
		return fmt.Errorf("%s wheel pwm: %w", w.name, err)
	}
	return nil
}

// DutyFor maps a normalized speed magnitude to a PWM duty cycle.
func DutyFor(speed float64) gpio.Duty {
	mag := math.Abs(drive.Clamp(speed))
	return gpio.Duty(math.Round(mag * float64(gpio.DutyMax)))
}
