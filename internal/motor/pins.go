package motor

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WheelPins names the two direction pins of one H-bridge channel. Pin names
// are whatever the GPIO registry accepts ("GPIO19", "19", ...).
type WheelPins struct {
	Forward  string `yaml:"forward"`
	Backward string `yaml:"backward"`
}

// PinConfig is the hardware wiring. It lives outside the control core and is
// loaded from YAML.
type PinConfig struct {
	Left         WheelPins `yaml:"left"`
	Right        WheelPins `yaml:"right"`
	PWMFrequency int       `yaml:"pwm_frequency_hz"`
	// Invert flips a wheel whose motor leads are wired backwards.
	InvertLeft  bool `yaml:"invert_left"`
	InvertRight bool `yaml:"invert_right"`
}

// DefaultPinConfig is the stock wiring: BCM 19/26 drive the left wheel and
// BCM 16/20 the right one.
func DefaultPinConfig() PinConfig {
	return PinConfig{
		Left:         WheelPins{Forward: "GPIO19", Backward: "GPIO26"},
		Right:        WheelPins{Forward: "GPIO16", Backward: "GPIO20"},
		PWMFrequency: 1000,
	}
}

// LoadPinConfig reads a YAML pin map on top of the defaults. An empty path
// returns the defaults.
func LoadPinConfig(path string) (PinConfig, error) {
	cfg := DefaultPinConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PinConfig{}, fmt.Errorf("read pin config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PinConfig{}, fmt.Errorf("parse pin config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return PinConfig{}, err
	}
	return cfg, nil
}

func (c PinConfig) Validate() error {
	seen := map[string]string{}
	for label, pin := range map[string]string{
		"left.forward":   c.Left.Forward,
		"left.backward":  c.Left.Backward,
		"right.forward":  c.Right.Forward,
		"right.backward": c.Right.Backward,
	} {
		if strings.TrimSpace(pin) == "" {
			return fmt.Errorf("pin config: %s is empty", label)
		}
		if other, dup := seen[pin]; dup {
			return fmt.Errorf("pin config: %s and %s share pin %s", label, other, pin)
		}
		seen[pin] = label
	}
	if c.PWMFrequency <= 0 {
		return fmt.Errorf("pin config: pwm_frequency_hz must be positive")
	}
	return nil
}
