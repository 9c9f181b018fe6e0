package motor

import "log"

// Options selects and configures a driver variant.
type Options struct {
	UseMock       bool
	PinConfigPath string
}

// NewDriver returns the mock when asked to, otherwise the PWM driver. When the
// GPIO host cannot be initialised (no hardware attached) it falls back to the
// mock and says so.
func NewDriver(opts Options) (Driver, Kind, error) {
	if opts.UseMock {
		return NewMockDriver(), KindMock, nil
	}
	pins, err := LoadPinConfig(opts.PinConfigPath)
	if err != nil {
		return nil, "", err
	}
	d, err := OpenPWMDriver(pins)
	if err != nil {
		log.Printf("motor: gpio unavailable (%v); using mock driver", err)
		return NewMockDriver(), KindMock, nil
	}
	return d, KindPWM, nil
}
