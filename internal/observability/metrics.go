package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	WSWriteErrors    *prometheus.CounterVec
	InputEvents      *prometheus.CounterVec
	DriverCalls      *prometheus.CounterVec
	DriverSuppressed *prometheus.CounterVec
	DriverLatency    prometheus.Histogram
	WatchdogTrips    prometheus.Counter
	WatchdogState    *prometheus.GaugeVec

	driver *driverWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of connected operator sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by stage.",
		}, []string{"stage"}),
		InputEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_events_total",
			Help:      "Operator input events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		DriverCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_calls_total",
			Help:      "Motor driver calls by result.",
		}, []string{"result"}),
		DriverSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_calls_suppressed_total",
			Help:      "Control ticks that skipped the motor driver, by reason.",
		}, []string{"reason"}),
		DriverLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "driver_call_latency_ms",
			Help:      "Motor driver call latency in milliseconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		}),
		WatchdogTrips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_trips_total",
			Help:      "Failsafe watchdog trips.",
		}),
		WatchdogState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchdog_state",
			Help:      "1 for the current failsafe watchdog state, 0 otherwise.",
		}, []string{"state"}),
		driver: newDriverWindow(512),
	}
}

// ObserveDriverCall records one motor driver call. Safe on a nil receiver.
func (m *Metrics) ObserveDriverCall(c DriverCall) {
	if m == nil {
		return
	}
	result := "ok"
	if c.Err != nil {
		result = "error"
	}
	m.DriverCalls.WithLabelValues(result).Inc()
	m.DriverLatency.Observe(millis(c.Latency))
	m.driver.observeCall(c)
}

// ObserveSuppressed counts a tick that skipped the driver.
func (m *Metrics) ObserveSuppressed(reason string) {
	if m == nil {
		return
	}
	m.DriverSuppressed.WithLabelValues(reason).Inc()
	m.driver.observeSuppressed(reason)
}

// SetWatchdogState marks state as the current one among states.
func (m *Metrics) SetWatchdogState(state string, states ...string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.WatchdogState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ObserveWatchdogTrip() {
	if m == nil {
		return
	}
	m.WatchdogTrips.Inc()
	m.driver.observeTrip()
}

func (m *Metrics) ObserveInput(kind, outcome string) {
	if m == nil {
		return
	}
	m.InputEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveSession(event string, active int) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) ObserveMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveWriteError(stage string) {
	if m == nil {
		return
	}
	m.WSWriteErrors.WithLabelValues(stage).Inc()
}

// DriverPerf returns the rolling driver call window.
func (m *Metrics) DriverPerf() DriverPerf {
	if m == nil {
		return DriverPerf{GeneratedAt: time.Now().UTC(), Suppressed: map[string]int{}}
	}
	return m.driver.snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
