package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the robot control service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	UseMockDriver bool
	PinConfigPath string

	FailsafeTimeout       time.Duration
	ControlTickHz         int
	ControlMode           string
	MinDriverInterval     time.Duration
	MaxConcurrentSessions int
	IdleSessionTimeout    time.Duration
	HeartbeatInterval     time.Duration

	LogFile     string
	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8000"),
		ShutdownTimeout:       10 * time.Second,
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "socketrobot"),
		AllowAnyOrigin:        false,
		PinConfigPath:         stringsTrimSpace("ROBOT_PIN_CONFIG"),
		ControlMode:           strings.ToLower(envOrDefault("ROBOT_CONTROL_MODE", "tick")),
		MaxConcurrentSessions: 4,
		ControlTickHz:         20,
		FailsafeTimeout:       500 * time.Millisecond,
		MinDriverInterval:     50 * time.Millisecond,
		IdleSessionTimeout:    30 * time.Second,
		HeartbeatInterval:     200 * time.Millisecond,
		LogFile:               stringsTrimSpace("ROBOT_LOG_FILE"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.UseMockDriver, err = boolFromEnv("ROBOT_USE_MOCK", cfg.UseMockDriver)
	if err != nil {
		return Config{}, err
	}
	cfg.FailsafeTimeout, err = millisFromEnv("ROBOT_FAILSAFE_TIMEOUT_MS", cfg.FailsafeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ControlTickHz, err = intFromEnv("ROBOT_CONTROL_TICK_HZ", cfg.ControlTickHz)
	if err != nil {
		return Config{}, err
	}
	cfg.MinDriverInterval, err = millisFromEnv("ROBOT_MIN_DRIVER_INTERVAL_MS", cfg.MinDriverInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConcurrentSessions, err = intFromEnv("ROBOT_MAX_SESSIONS", cfg.MaxConcurrentSessions)
	if err != nil {
		return Config{}, err
	}
	cfg.IdleSessionTimeout, err = millisFromEnv("ROBOT_IDLE_SESSION_TIMEOUT_MS", cfg.IdleSessionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HeartbeatInterval, err = millisFromEnv("ROBOT_HEARTBEAT_INTERVAL_MS", cfg.HeartbeatInterval)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.ControlTickHz < 1 || c.ControlTickHz > 1000 {
		return fmt.Errorf("ROBOT_CONTROL_TICK_HZ must be within [1,1000]")
	}
	if c.ControlMode != "tick" && c.ControlMode != "event" {
		return fmt.Errorf("ROBOT_CONTROL_MODE must be tick or event, got %q", c.ControlMode)
	}
	if c.FailsafeTimeout < 50*time.Millisecond {
		return fmt.Errorf("ROBOT_FAILSAFE_TIMEOUT_MS must be at least 50")
	}
	if c.MinDriverInterval < 0 {
		return fmt.Errorf("ROBOT_MIN_DRIVER_INTERVAL_MS must be >= 0")
	}
	if c.MaxConcurrentSessions < 1 {
		return fmt.Errorf("ROBOT_MAX_SESSIONS must be positive")
	}
	if c.IdleSessionTimeout < c.FailsafeTimeout {
		return fmt.Errorf("ROBOT_IDLE_SESSION_TIMEOUT_MS must not be shorter than the failsafe timeout")
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.FailsafeTimeout {
		return fmt.Errorf("ROBOT_HEARTBEAT_INTERVAL_MS must be positive and below the failsafe timeout")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

// millisFromEnv reads an integer millisecond count.
func millisFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
