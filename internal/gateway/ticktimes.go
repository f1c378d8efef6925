package gateway

import (
	"math"
	"sort"
	"sync"
	"time"
)

// TickTimes keeps the most recent tick durations and reports percentiles
// for the metrics envelope. Safe for concurrent use.
type TickTimes struct {
	mu     sync.Mutex
	ms     []float64
	next   int
	filled bool
	max    float64
}

// NewTickTimes keeps the last window durations (10000 when window <= 0).
func NewTickTimes(window int) *TickTimes {
	if window <= 0 {
		window = 10000
	}
	return &TickTimes{ms: make([]float64, window)}
}

// Record adds one tick duration.
func (t *TickTimes) Record(d time.Duration) {
	v := float64(d.Microseconds()) / 1000
	t.mu.Lock()
	t.ms[t.next] = v
	t.next++
	if t.next == len(t.ms) {
		t.next, t.filled = 0, true
	}
	if v > t.max {
		t.max = v
	}
	t.mu.Unlock()
}

// Percentiles returns p50, p95 and p99 in milliseconds over the window,
// or zeros before the first sample.
func (t *TickTimes) Percentiles() (p50, p95, p99 float64) {
	t.mu.Lock()
	n := t.count()
	window := append([]float64(nil), t.ms[:n]...)
	t.mu.Unlock()

	if n == 0 {
		return 0, 0, 0
	}
	sort.Float64s(window)
	return quantile(window, 0.50), quantile(window, 0.95), quantile(window, 0.99)
}

// Count is the number of samples in the window.
func (t *TickTimes) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count()
}

// Max is the slowest tick ever recorded, in milliseconds.
func (t *TickTimes) Max() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max
}

func (t *TickTimes) count() int {
	if t.filled {
		return len(t.ms)
	}
	return t.next
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	last := len(sorted) - 1
	rank := q * float64(last)
	lo := int(math.Floor(rank))
	if lo >= last {
		return sorted[last]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}
