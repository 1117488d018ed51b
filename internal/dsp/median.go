// internal/dsp/median.go
package dsp

import (
	"slices"
	"time"
)

// DefaultMedianWindow is how long tempo estimates stay in the sliding median
const DefaultMedianWindow = 5 * time.Second

type medianSample struct {
	value     float32
	timestamp time.Time
}

// SlidingMedian returns the median of all values offered within a trailing
// time window. Values are kept in arrival order for eviction and in a
// separate sorted slice for the median lookup.
type SlidingMedian struct {
	retention time.Duration
	samples   []medianSample // arrival order
	sorted    []float32      // value order
}

// NewSlidingMedian creates a median filter that keeps values for retention
func NewSlidingMedian(retention time.Duration) *SlidingMedian {
	return &SlidingMedian{
		retention: retention,
		samples:   make([]medianSample, 0, 64),
		sorted:    make([]float32, 0, 64),
	}
}

// Offer adds value observed at ts, drops every value observed at or before
// ts minus the retention window, and returns the median of what remains.
// The offered value itself is never evicted.
func (m *SlidingMedian) Offer(value float32, ts time.Time) float32 {
	m.samples = append(m.samples, medianSample{value: value, timestamp: ts})
	pos, _ := slices.BinarySearch(m.sorted, value)
	m.sorted = slices.Insert(m.sorted, pos, value)

	cutoff := ts.Add(-m.retention)
	expired := 0
	for expired < len(m.samples)-1 && !m.samples[expired].timestamp.After(cutoff) {
		m.removeSorted(m.samples[expired].value)
		expired++
	}
	if expired > 0 {
		m.samples = slices.Delete(m.samples, 0, expired)
	}

	return m.Median()
}

// Median returns the current median, or 0 when the window is empty
func (m *SlidingMedian) Median() float32 {
	n := len(m.sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return m.sorted[n/2]
	default:
		return (m.sorted[n/2-1] + m.sorted[n/2]) / 2
	}
}

// Len returns the number of retained values
func (m *SlidingMedian) Len() int {
	return len(m.samples)
}

// Grow makes room for n retained values so Offer does not allocate until
// the window holds more than n
func (m *SlidingMedian) Grow(n int) {
	if extra := n - len(m.samples); extra > 0 {
		m.samples = slices.Grow(m.samples, extra)
		m.sorted = slices.Grow(m.sorted, extra)
	}
}

// Reset drops all retained values
func (m *SlidingMedian) Reset() {
	m.samples = m.samples[:0]
	m.sorted = m.sorted[:0]
}

func (m *SlidingMedian) removeSorted(value float32) {
	if pos, found := slices.BinarySearch(m.sorted, value); found {
		m.sorted = slices.Delete(m.sorted, pos, pos+1)
	}
}
