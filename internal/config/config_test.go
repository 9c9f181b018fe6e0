package config

import (
	"bytes"
	"go/format"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8000" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8000")
	}
	if cfg.UseMockDriver {
		t.Fatalf("UseMockDriver should default to false")
	}
	if cfg.FailsafeTimeout != 500*time.Millisecond {
		t.Fatalf("FailsafeTimeout = %v, want 500ms", cfg.FailsafeTimeout)
	}
	if cfg.ControlTickHz != 20 {
		t.Fatalf("ControlTickHz = %d, want 20", cfg.ControlTickHz)
	}
	if cfg.MinDriverInterval != 50*time.Millisecond {
		t.Fatalf("MinDriverInterval = %v, want 50ms", cfg.MinDriverInterval)
	}
	if cfg.IdleSessionTimeout != 30*time.Second {
		t.Fatalf("IdleSessionTimeout = %v, want 30s", cfg.IdleSessionTimeout)
	}
	if cfg.ControlMode != "tick" {
		t.Fatalf("ControlMode = %q, want tick", cfg.ControlMode)
	}
	if cfg.MaxConcurrentSessions != 4 {
		t.Fatalf("MaxConcurrentSessions = %d, want 4", cfg.MaxConcurrentSessions)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ROBOT_USE_MOCK", "1")
	t.Setenv("ROBOT_FAILSAFE_TIMEOUT_MS", "750")
	t.Setenv("ROBOT_CONTROL_TICK_HZ", "50")
	t.Setenv("ROBOT_CONTROL_MODE", "EVENT")
	t.Setenv("ROBOT_MAX_SESSIONS", "2")
	t.Setenv("ROBOT_IDLE_SESSION_TIMEOUT_MS", "10000")
	t.Setenv("ROBOT_PIN_CONFIG", " /etc/robot/pins.yaml ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.UseMockDriver {
		t.Fatalf("UseMockDriver = false, want true")
	}
	if cfg.FailsafeTimeout != 750*time.Millisecond {
		t.Fatalf("FailsafeTimeout = %v, want 750ms", cfg.FailsafeTimeout)
	}
	if cfg.ControlTickHz != 50 || cfg.ControlMode != "event" || cfg.MaxConcurrentSessions != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.IdleSessionTimeout != 10*time.Second {
		t.Fatalf("IdleSessionTimeout = %v, want 10s", cfg.IdleSessionTimeout)
	}
	if cfg.PinConfigPath != "/etc/robot/pins.yaml" {
		t.Fatalf("PinConfigPath = %q", cfg.PinConfigPath)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"ROBOT_USE_MOCK", "maybe", "ROBOT_USE_MOCK"},
		{"ROBOT_CONTROL_TICK_HZ", "0", "ROBOT_CONTROL_TICK_HZ"},
		{"ROBOT_CONTROL_TICK_HZ", "fast", "ROBOT_CONTROL_TICK_HZ"},
		{"ROBOT_CONTROL_MODE", "sometimes", "ROBOT_CONTROL_MODE"},
		{"ROBOT_FAILSAFE_TIMEOUT_MS", "10", "ROBOT_FAILSAFE_TIMEOUT_MS"},
		{"ROBOT_MAX_SESSIONS", "0", "ROBOT_MAX_SESSIONS"},
		{"ROBOT_IDLE_SESSION_TIMEOUT_MS", "100", "ROBOT_IDLE_SESSION_TIMEOUT_MS"},
		{"ROBOT_HEARTBEAT_INTERVAL_MS", "600", "ROBOT_HEARTBEAT_INTERVAL_MS"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want error mentioning %s", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"ROBOT_USE_MOCK",
		"ROBOT_PIN_CONFIG",
		"ROBOT_FAILSAFE_TIMEOUT_MS",
		"ROBOT_CONTROL_TICK_HZ",
		"ROBOT_CONTROL_MODE",
		"ROBOT_MIN_DRIVER_INTERVAL_MS",
		"ROBOT_MAX_SESSIONS",
		"ROBOT_IDLE_SESSION_TIMEOUT_MS",
		"ROBOT_HEARTBEAT_INTERVAL_MS",
		"ROBOT_LOG_FILE",
		"DATABASE_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestConfigSourceIsGofmtClean(t *testing.T) {
	src, err := os.ReadFile("config.go")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	formatted, err := format.Source(src)
	if err != nil {
		t.Fatalf("format.Source() error = %v", err)
	}
	if !bytes.Equal(src, formatted) {
		t.Fatalf("config.go is not gofmt-formatted")
	}
}
