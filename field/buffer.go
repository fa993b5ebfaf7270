package field

import (
	"math"
	"time"

	"github.com/timzifer/cswui/chart"
)

// DefaultBufferSize bounds a series when no usable buffer option is set.
const DefaultBufferSize = 10000

// Sample is one point of a series.
type Sample struct {
	Time  time.Time
	Value float64
}

// SeriesBuffer is a fixed-size ring of samples in arrival order. Pushing
// into a full buffer overwrites the oldest sample.
type SeriesBuffer struct {
	capacity int
	samples  []Sample
	head     int
	size     int
	evicted  uint64
}

// NewSeriesBuffer creates a buffer holding floor(limit) samples. A missing
// or non-positive limit falls back to DefaultBufferSize. A limit below one
// keeps nothing.
func NewSeriesBuffer(limit float64) *SeriesBuffer {
	capacity := DefaultBufferSize
	if !math.IsNaN(limit) && limit > 0 {
		capacity = int(math.Min(math.Floor(limit), math.MaxInt32))
	}
	return &SeriesBuffer{capacity: capacity}
}

// Capacity returns the maximum number of retained samples.
func (b *SeriesBuffer) Capacity() int {
	return b.capacity
}

// Len returns the number of retained samples.
func (b *SeriesBuffer) Len() int {
	return b.size
}

// Evicted returns how many samples have been pushed out so far.
func (b *SeriesBuffer) Evicted() uint64 {
	return b.evicted
}

// Push appends s and reports whether a sample was evicted. A zero-capacity
// buffer drops s itself.
func (b *SeriesBuffer) Push(s Sample) bool {
	if b.capacity == 0 {
		b.evicted++
		return true
	}
	// head stays at zero until the buffer first fills.
	if b.size < b.capacity {
		b.samples = append(b.samples, s)
		b.size++
		return false
	}
	b.samples[b.head] = s
	b.head = (b.head + 1) % b.capacity
	b.evicted++
	return true
}

// Samples returns the retained samples, oldest first.
func (b *SeriesBuffer) Samples() []Sample {
	out := make([]Sample, b.size)
	for i := range out {
		out[i] = b.samples[(b.head+i)%len(b.samples)]
	}
	return out
}

// Points converts the retained samples for charting.
func (b *SeriesBuffer) Points() []chart.Point {
	out := make([]chart.Point, b.size)
	for i := range out {
		s := b.samples[(b.head+i)%len(b.samples)]
		out[i] = chart.Point{Time: s.Time, Value: s.Value}
	}
	return out
}
