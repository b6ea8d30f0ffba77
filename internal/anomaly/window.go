package anomaly

import (
	"fmt"
	"math"
)

// Window is a bounded FIFO of the most recent samples for one telemetry
// channel. Once capacity is reached, pushing a sample evicts the oldest.
// Statistics are defined only when the window holds at least two samples.
type Window struct {
	values []float64
	size   int
	index  int
	count  int
}

// NewWindow creates a rolling window holding up to capacity samples.
func NewWindow(capacity int) (*Window, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("invalid window capacity: %d", capacity)
	}
	return &Window{
		values: make([]float64, capacity),
		size:   capacity,
	}, nil
}

// Push appends a sample, evicting the oldest one when the window is full.
func (w *Window) Push(v float64) {
	w.values[w.index] = v
	w.index = (w.index + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.count
}

// Stats returns the arithmetic mean and population standard deviation over
// the current contents. ok is false while the window holds fewer than two
// samples, in which case both statistics are undefined.
func (w *Window) Stats() (mean, stddev float64, ok bool) {
	if w.count < 2 {
		return 0, 0, false
	}

	n := float64(w.count)
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.values[i]
	}
	mean = sum / n

	var sq float64
	for i := 0; i < w.count; i++ {
		d := w.values[i] - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n), true
}

// Oldest-first snapshot of the window contents, for tests.
func (w *Window) snapshot() []float64 {
	out := make([]float64, 0, w.count)
	start := 0
	if w.count == w.size {
		start = w.index
	}
	for i := 0; i < w.count; i++ {
		out = append(out, w.values[(start+i)%w.size])
	}
	return out
}
