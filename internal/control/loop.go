package control

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/socketrobot/internal/arbiter"
	"github.com/ent0n29/socketrobot/internal/drive"
	"github.com/ent0n29/socketrobot/internal/motor"
	"github.com/ent0n29/socketrobot/internal/observability"
	"github.com/ent0n29/socketrobot/internal/telemetry"
	"github.com/ent0n29/socketrobot/internal/watchdog"
)

// Mode selects when the loop evaluates.
type Mode string

const (
	// ModeTick evaluates on the fixed cadence only.
	ModeTick Mode = "tick"
	// ModeEvent also evaluates as soon as the drive vector changes.
	ModeEvent Mode = "event"
)

const (
	DefaultTickHz      = 20
	DefaultMinInterval = 50 * time.Millisecond
)

type Config struct {
	TickHz      int
	MinInterval time.Duration
	Mode        Mode
}

var watchdogStates = []string{
	string(watchdog.StateArmed),
	string(watchdog.StateActive),
	string(watchdog.StateTripped),
}

// Status is the loop's externally visible state.
type Status struct {
	Mode            Mode              `json:"mode"`
	Vector          drive.DriveVector `json:"vector"`
	Target          drive.WheelSpeeds `json:"target"`
	LastSent        drive.WheelSpeeds `json:"last_sent"`
	Synced          bool              `json:"synced"`
	DriverCalls     int               `json:"driver_calls"`
	DriverFailures  int               `json:"driver_failures"`
	LastDriverError string            `json:"last_driver_error,omitempty"`
	LastCallAt      time.Time         `json:"last_call_at"`
}

// Loop is the only caller of the motor driver. It reads the watchdog and
// arbiter on each tick, mixes the effective vector into wheel speeds and
// issues a driver call when they differ from what was last sent.
//
// Loop also implements session.Sink: events feed the watchdog and the
// arbiter, and a vector change wakes the loop in event mode.
type Loop struct {
	arbiter     *arbiter.Arbiter
	watchdog    *watchdog.Watchdog
	driver      motor.Driver
	metrics     *observability.Metrics
	journal     *telemetry.Recorder
	tick        time.Duration
	minInterval time.Duration
	mode        Mode
	now         func() time.Time
	wake        chan struct{}

	// Owned by the goroutine calling Step.
	last       drive.WheelSpeeds
	synced     bool
	called     bool
	lastCallAt time.Time
	failing    bool

	// Motion held back by the rate limit becomes due at retryAt.
	retryPending bool
	retryAt      time.Time

	mu     sync.RWMutex
	status Status
}

func New(cfg Config, arb *arbiter.Arbiter, wd *watchdog.Watchdog, driver motor.Driver, metrics *observability.Metrics, journal *telemetry.Recorder) *Loop {
	if cfg.TickHz <= 0 {
		cfg.TickHz = DefaultTickHz
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeTick
	}
	return &Loop{
		arbiter:     arb,
		watchdog:    wd,
		driver:      driver,
		metrics:     metrics,
		journal:     journal,
		tick:        time.Second / time.Duration(cfg.TickHz),
		minInterval: cfg.MinInterval,
		mode:        cfg.Mode,
		now:         time.Now,
		wake:        make(chan struct{}, 1),
		status:      Status{Mode: cfg.Mode},
	}
}

// SetClock replaces the time source used by Run. Intended for tests.
func (l *Loop) SetClock(now func() time.Time) { l.now = now }

// TickPeriod returns the interval between evaluations.
func (l *Loop) TickPeriod() time.Duration { return l.tick }

// Apply feeds one recorded input event. It never blocks.
func (l *Loop) Apply(ev drive.InputEvent) {
	l.watchdog.Observe(ev.Timestamp)
	if l.arbiter.Apply(ev) {
		l.notify()
	}
}

// Release drops a departing session's held inputs. It never blocks.
func (l *Loop) Release(sessionID string) {
	if l.arbiter.RemoveSession(sessionID) {
		l.notify()
	}
}

// EmergencyStop releases every held input of every session. Sessions stay
// connected; the next evaluation commands zero.
func (l *Loop) EmergencyStop(reason string) {
	l.arbiter.ReleaseAll()
	l.journal.Record(telemetry.KindEmergencyStop, "", reason)
	log.Printf("control: emergency stop (%s)", reason)
	l.notify()
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run evaluates on the tick cadence (and on vector changes in event mode)
// until ctx is done, then commands a final stop. Motion held back by the
// rate limit is re-evaluated as soon as the interval elapses.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	retry := time.NewTimer(l.tick)
	retry.Stop()
	defer retry.Stop()
	var retryC <-chan time.Time

	step := func() {
		now := l.now()
		l.Step(now)
		if d, ok := l.retryDelay(now); ok {
			retry.Reset(d)
			retryC = retry.C
			return
		}
		retryC = nil
	}

	log.Printf("control: loop started (mode=%s tick=%s min_interval=%s failsafe=%s)",
		l.mode, l.tick, l.minInterval, l.watchdog.Timeout())
	step()
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case <-ticker.C:
			step()
		case <-retryC:
			step()
		case <-l.wake:
			if l.mode == ModeEvent {
				step()
			}
		}
	}
}

// retryDelay reports how long until rate-limited motion may be sent.
func (l *Loop) retryDelay(now time.Time) (time.Duration, bool) {
	if !l.retryPending {
		return 0, false
	}
	return max(l.retryAt.Sub(now), 0), true
}

// Step runs one evaluation at now and reports whether the driver was called.
// Step must not be called concurrently with itself.
func (l *Loop) Step(now time.Time) bool {
	state, changed := l.watchdog.Poll(now)
	if changed {
		l.onWatchdogTransition(state)
	}
	forceStop := changed && state == watchdog.StateTripped
	l.retryPending = false

	var vec drive.DriveVector
	if state == watchdog.StateActive {
		vec = l.arbiter.Current()
	}
	target := drive.Mix(vec)
	l.setTarget(vec, target)

	if !forceStop {
		if l.synced && target == l.last {
			l.metrics.ObserveSuppressed("unchanged")
			return false
		}
		// Stopping is never rate limited.
		if !target.IsZero() && l.called && now.Sub(l.lastCallAt) < l.minInterval {
			l.metrics.ObserveSuppressed("rate_limited")
			l.retryPending = true
			l.retryAt = l.lastCallAt.Add(l.minInterval)
			return false
		}
	}

	call := observability.DriverCall{ForcedStop: forceStop}
	if l.called {
		call.SinceLast = now.Sub(l.lastCallAt)
	}
	start := time.Now()
	err := l.driver.SetWheelSpeeds(target.Left, target.Right)
	call.Latency = time.Since(start)
	call.Err = err
	l.metrics.ObserveDriverCall(call)
	l.called = true
	l.lastCallAt = now

	if err != nil {
		// The motors may be in any state now; keep trying to reach target.
		l.synced = false
		log.Printf("control: driver call failed: %v", err)
		if !l.failing {
			l.journal.Record(telemetry.KindDriverError, "", err.Error())
		}
		l.failing = true
		l.recordCall(now, target, err)
		return true
	}
	if l.failing {
		log.Printf("control: driver recovered")
	}
	l.failing = false
	l.last = target
	l.synced = true
	l.recordCall(now, target, nil)
	return true
}

// Status returns a copy of the loop's visible state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *Loop) shutdown() {
	if err := l.driver.SetWheelSpeeds(0, 0); err != nil {
		log.Printf("control: final stop failed: %v", err)
		return
	}
	l.recordCall(l.now(), drive.Stop, nil)
	log.Printf("control: loop stopped, motors commanded to zero")
}

func (l *Loop) onWatchdogTransition(state watchdog.State) {
	l.metrics.SetWatchdogState(string(state), watchdogStates...)
	switch state {
	case watchdog.StateTripped:
		l.metrics.ObserveWatchdogTrip()
		detail := fmt.Sprintf("no input for %s", l.watchdog.Timeout())
		l.journal.Record(telemetry.KindWatchdogTripped, "", detail)
		log.Printf("control: failsafe tripped, %s; stopping", detail)
	case watchdog.StateActive:
		l.journal.Record(telemetry.KindWatchdogRecovered, "", "")
		log.Printf("control: input active, failsafe released")
	}
}

func (l *Loop) setTarget(vec drive.DriveVector, target drive.WheelSpeeds) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Vector = vec
	l.status.Target = target
}

func (l *Loop) recordCall(at time.Time, sent drive.WheelSpeeds, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.DriverCalls++
	l.status.LastCallAt = at
	if err != nil {
		l.status.DriverFailures++
		l.status.LastDriverError = err.Error()
		l.status.Synced = false
		return
	}
	l.status.LastSent = sent
	l.status.Synced = true
	l.status.LastDriverError = ""
}
