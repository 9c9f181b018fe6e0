package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// driverLatencyBudgetMS is how long a wheel-speed call may take before it
// eats into the default 50ms spacing between calls.
const driverLatencyBudgetMS = 10

// DriverCall is one motor driver call as issued by the control loop.
// SinceLast is the spacing from the previous call and is zero on the first.
type DriverCall struct {
	Latency    time.Duration
	SinceLast  time.Duration
	ForcedStop bool
	Err        error
}

// SeriesStats summarises one rolling series in milliseconds.
type SeriesStats struct {
	Samples  int     `json:"samples"`
	LastMS   float64 `json:"last_ms"`
	MinMS    float64 `json:"min_ms"`
	AvgMS    float64 `json:"avg_ms"`
	P50MS    float64 `json:"p50_ms"`
	P95MS    float64 `json:"p95_ms"`
	MaxMS    float64 `json:"max_ms"`
	BudgetMS float64 `json:"budget_ms,omitempty"`
}

// DriverPerf is the /v1/perf/driver payload.
type DriverPerf struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	WindowSize    int            `json:"window_size"`
	Calls         int            `json:"calls"`
	Errors        int            `json:"errors"`
	ForcedStops   int            `json:"forced_stops"`
	WatchdogTrips int            `json:"watchdog_trips"`
	Suppressed    map[string]int `json:"suppressed"`
	Latency       SeriesStats    `json:"latency"`
	Interval      SeriesStats    `json:"interval"`
}

// driverWindow keeps the newest call latencies and inter-call intervals
// alongside lifetime counters.
type driverWindow struct {
	mu         sync.Mutex
	size       int
	latency    series
	interval   series
	calls      int
	errors     int
	forced     int
	trips      int
	suppressed map[string]int
}

type series struct {
	values []float64
	next   int
	full   bool
	last   float64
}

func (s *series) add(v float64) {
	s.values[s.next] = v
	s.last = v
	s.next = (s.next + 1) % len(s.values)
	if s.next == 0 {
		s.full = true
	}
}

func (s *series) stats(budget float64) SeriesStats {
	n := s.next
	if s.full {
		n = len(s.values)
	}
	if n == 0 {
		return SeriesStats{BudgetMS: budget}
	}
	sorted := append([]float64(nil), s.values[:n]...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return SeriesStats{
		Samples:  n,
		LastMS:   round2(s.last),
		MinMS:    round2(sorted[0]),
		AvgMS:    round2(sum / float64(n)),
		P50MS:    round2(nearestRank(sorted, 0.50)),
		P95MS:    round2(nearestRank(sorted, 0.95)),
		MaxMS:    round2(sorted[n-1]),
		BudgetMS: budget,
	}
}

func newDriverWindow(size int) *driverWindow {
	if size <= 0 {
		size = 256
	}
	return &driverWindow{
		size:       size,
		latency:    series{values: make([]float64, size)},
		interval:   series{values: make([]float64, size)},
		suppressed: make(map[string]int),
	}
}

func (w *driverWindow) observeCall(c DriverCall) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if c.Err != nil {
		w.errors++
	}
	if c.ForcedStop {
		w.forced++
	}
	w.latency.add(millis(c.Latency))
	if c.SinceLast > 0 {
		w.interval.add(millis(c.SinceLast))
	}
}

func (w *driverWindow) observeSuppressed(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suppressed[reason]++
}

func (w *driverWindow) observeTrip() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trips++
}

func (w *driverWindow) snapshot() DriverPerf {
	w.mu.Lock()
	defer w.mu.Unlock()
	suppressed := make(map[string]int, len(w.suppressed))
	for k, v := range w.suppressed {
		suppressed[k] = v
	}
	return DriverPerf{
		GeneratedAt:   time.Now().UTC(),
		WindowSize:    w.size,
		Calls:         w.calls,
		Errors:        w.errors,
		ForcedStops:   w.forced,
		WatchdogTrips: w.trips,
		Suppressed:    suppressed,
		Latency:       w.latency.stats(driverLatencyBudgetMS),
		Interval:      w.interval.stats(0),
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// nearestRank picks the smallest sample with at least q of the window at or
// below it.
func nearestRank(sorted []float64, q float64) float64 {
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
