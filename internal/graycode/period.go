package graycode

// InstantaneousPeriod returns the time per encoder step across an interval of
// elapsedSamples. Multi-step jumps are normalized to a single step and a zero
// delta is treated as one step.
func InstantaneousPeriod(elapsedSamples int64, sampleRate uint64, delta int) float64 {
	if delta < 0 {
		delta = -delta
	}
	if delta < 1 {
		delta = 1
	}
	return float64(elapsedSamples) / float64(sampleRate) / float64(delta)
}

// Rate converts a period in seconds to a frequency in Hz.
func Rate(period float64) float64 {
	return 1 / period
}

// RPM converts a step period to revolutions per minute. It reports false when
// pulsesPerRevolution is zero.
func RPM(period float64, pulsesPerRevolution int) (float64, bool) {
	if pulsesPerRevolution <= 0 {
		return 0, false
	}
	return 60 / period / float64(pulsesPerRevolution), true
}

// RollingWindow keeps the most recent period samples and their mean.
//
// The backing array is a ring of fixed capacity; Push never allocates.
type RollingWindow struct {
	buf  []float64
	head int // index of the oldest sample
	size int
}

// NewRollingWindow creates a window holding at most capacity samples.
// Capacity must be at least one; Config.Validate rejects anything smaller.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingWindow{buf: make([]float64, capacity)}
}

// Push appends period, evicts the oldest samples while the window is over
// capacity, and returns the mean of what remains.
func (w *RollingWindow) Push(period float64) float64 {
	if w.size == len(w.buf) {
		w.head = (w.head + 1) % len(w.buf)
		w.size--
	}
	w.buf[(w.head+w.size)%len(w.buf)] = period
	w.size++
	return w.Average()
}

// Average returns the arithmetic mean of the current contents, or zero when
// the window is empty.
//
// The mean is summed from the stored samples on every call; no running total
// is kept.
func (w *RollingWindow) Average() float64 {
	if w.size == 0 {
		return 0
	}
	var s float64
	for i := 0; i < w.size; i++ {
		s += w.buf[(w.head+i)%len(w.buf)]
	}
	return s / float64(w.size)
}

// Len returns the number of samples currently held.
func (w *RollingWindow) Len() int {
	return w.size
}

// Cap returns the configured capacity.
func (w *RollingWindow) Cap() int {
	return len(w.buf)
}
