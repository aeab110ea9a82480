package metrics

import (
	"sync/atomic"
	"time"
)

// BucketCount is the number of latency buckets: <=5ms, 10, 25, 50, 100, 250,
// 500 and +Inf.
const BucketCount = 8

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Set is a fixed-size table of counters and histograms addressed by index.
// Callers own the meaning of each index.
type Set struct {
	enabled    bool
	latency    bool
	counters   []paddedCounter
	histograms []histogram
}

// NewSet allocates n counters and n histograms. A disabled set ignores every
// write and reads as zero.
func NewSet(n int, enabled, latency bool) *Set {
	if n < 0 {
		n = 0
	}
	return &Set{
		enabled:    enabled,
		latency:    enabled && latency,
		counters:   make([]paddedCounter, n),
		histograms: make([]histogram, n),
	}
}

func (s *Set) Enabled() bool {
	return s != nil && s.enabled
}

func (s *Set) LatencyEnabled() bool {
	return s != nil && s.latency
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.counters)
}

func (s *Set) Inc(i int) {
	if s == nil || !s.enabled || i < 0 || i >= len(s.counters) {
		return
	}
	atomic.AddUint64(&s.counters[i].value, 1)
}

func (s *Set) Value(i int) uint64 {
	if s == nil || i < 0 || i >= len(s.counters) {
		return 0
	}
	return atomic.LoadUint64(&s.counters[i].value)
}

func (s *Set) Observe(i int, d time.Duration) {
	if s == nil || !s.latency || i < 0 || i >= len(s.histograms) {
		return
	}
	atomic.AddUint64(&s.histograms[i].buckets[BucketIndex(d)], 1)
}

// Buckets returns a copy of the per-bucket (non-cumulative) counts.
func (s *Set) Buckets(i int) []uint64 {
	out := make([]uint64, BucketCount)
	if s == nil || i < 0 || i >= len(s.histograms) {
		return out
	}
	for b := 0; b < BucketCount; b++ {
		out[b] = atomic.LoadUint64(&s.histograms[i].buckets[b])
	}
	return out
}

// BucketIndex maps a duration to its histogram bucket.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
