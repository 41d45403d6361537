package perfstats

import (
	"math/bits"

	"github.com/bmharper/ringbuffer"
)

type latencySample struct {
	value float64
}

// MovingAverage is the average of the most recent N samples.
// It is not safe for concurrent use. Only one goroutine may push samples.
type MovingAverage struct {
	capacity int
	samples  ringbuffer.RingP[latencySample]
	sum      float64
}

// NewMovingAverage creates an average over the last 'capacity' samples.
// A capacity below 1 is treated as 1.
func NewMovingAverage(capacity int) *MovingAverage {
	capacity = max(capacity, 1)
	return &MovingAverage{
		capacity: capacity,
		samples:  newSampleRing(capacity),
	}
}

// The ring holds one less than its power-of-two size
func newSampleRing(capacity int) ringbuffer.RingP[latencySample] {
	size := 1 << bits.Len(uint(capacity))
	return ringbuffer.NewRingP[latencySample](size)
}

// Push adds a sample, evicting the oldest sample if we're at capacity, and returns the new average
func (m *MovingAverage) Push(sample float64) float64 {
	if m.samples.Len() == m.capacity {
		m.sum -= m.samples.Next().value
	}
	m.samples.Add(latencySample{value: sample})
	m.sum += sample
	return m.Average()
}

// Average returns sum / min(samples seen, capacity), or zero if no samples have been pushed
func (m *MovingAverage) Average() float64 {
	n := m.samples.Len()
	if n == 0 {
		return 0
	}
	return m.sum / float64(n)
}

// Sum of the samples currently held
func (m *MovingAverage) Sum() float64 {
	return m.sum
}

// Number of samples currently held (never more than Capacity)
func (m *MovingAverage) Len() int {
	return m.samples.Len()
}

func (m *MovingAverage) Capacity() int {
	return m.capacity
}

func (m *MovingAverage) Reset() {
	m.samples = newSampleRing(m.capacity)
	m.sum = 0
}
