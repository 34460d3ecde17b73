package game

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"time"
)

const (
	statsWindowSize = 1000 // last N ticks kept for percentiles
	heapSampleEvery = 125  // ticks between ReadMemStats samples
)

// TickReport is a point-in-time summary of tick loop health.
type TickReport struct {
	TickCount   int64   `json:"tickCount"`
	Overruns    int64   `json:"overruns"`
	MinMs       float64 `json:"minMs"`
	AvgMs       float64 `json:"avgMs"`
	P95Ms       float64 `json:"p95Ms"`
	P99Ms       float64 `json:"p99Ms"`
	MaxMs       float64 `json:"maxMs"`
	StddevMs    float64 `json:"stddevMs"`
	Utilization float64 `json:"utilization"` // avg duration / budget
	JitterAvgMs float64 `json:"jitterAvgMs"` // deviation from the nominal interval
	JitterMaxMs float64 `json:"jitterMaxMs"`
	HeapBytes   uint64  `json:"heapBytes"`
	HeapAvg     uint64  `json:"heapAvgBytes"`
	HeapMax     uint64  `json:"heapMaxBytes"`
}

// TickStats accumulates tick durations over a sliding window. One writer (the
// tick loop); readers take the mutex through Report.
type TickStats struct {
	mu sync.Mutex

	budget   time.Duration
	interval time.Duration

	window [statsWindowSize]time.Duration
	count  int64
	filled int

	overruns  int64
	jitterSum time.Duration
	jitterN   int64
	jitterMax time.Duration

	lastStart time.Time

	heapCurrent uint64
	heapSum     uint64
	heapSamples uint64
	heapMax     uint64
}

// NewTickStats creates stats for a loop with the given nominal interval and
// per-tick budget.
func NewTickStats(interval, budget time.Duration) *TickStats {
	return &TickStats{budget: budget, interval: interval}
}

// Record registers one completed tick. start is when the tick began, duration
// how long the work took.
func (s *TickStats) Record(start time.Time, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window[s.count%statsWindowSize] = duration
	s.count++
	if s.filled < statsWindowSize {
		s.filled++
	}
	if duration > s.budget {
		s.overruns++
	}

	if !s.lastStart.IsZero() {
		jitter := start.Sub(s.lastStart) - s.interval
		if jitter < 0 {
			jitter = -jitter
		}
		s.jitterSum += jitter
		s.jitterN++
		if jitter > s.jitterMax {
			s.jitterMax = jitter
		}
	}
	s.lastStart = start

	if s.count%heapSampleEvery == 0 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		s.heapCurrent = m.HeapAlloc
		s.heapSum += m.HeapAlloc
		s.heapSamples++
		if m.HeapAlloc > s.heapMax {
			s.heapMax = m.HeapAlloc
		}
	}
}

// Report computes the current summary.
func (s *TickStats) Report() TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := TickReport{TickCount: s.count, Overruns: s.overruns}
	if s.filled == 0 {
		return r
	}

	sorted := make([]time.Duration, s.filled)
	copy(sorted, s.window[:s.filled])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	avg := float64(sum) / float64(s.filled)

	var variance float64
	for _, d := range sorted {
		diff := float64(d) - avg
		variance += diff * diff
	}
	variance /= float64(s.filled)

	r.MinMs = toMs(float64(sorted[0]))
	r.AvgMs = toMs(avg)
	r.P95Ms = toMs(float64(percentile(sorted, 95)))
	r.P99Ms = toMs(float64(percentile(sorted, 99)))
	r.MaxMs = toMs(float64(sorted[s.filled-1]))
	r.StddevMs = toMs(math.Sqrt(variance))
	if s.budget > 0 {
		r.Utilization = avg / float64(s.budget)
	}
	if s.jitterN > 0 {
		r.JitterAvgMs = toMs(float64(s.jitterSum) / float64(s.jitterN))
		r.JitterMaxMs = toMs(float64(s.jitterMax))
	}
	r.HeapBytes = s.heapCurrent
	if s.heapSamples > 0 {
		r.HeapAvg = s.heapSum / s.heapSamples
	}
	r.HeapMax = s.heapMax
	return r
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted)*p + 99) / 100
	if idx > 0 {
		idx--
	}
	return sorted[idx]
}

func toMs(ns float64) float64 { return ns / float64(time.Millisecond) }
