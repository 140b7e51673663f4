package graycode

// Counter integrates phase increments into a running position.
//
// Owned by the decode loop; not safe for concurrent use.
type Counter struct {
	count int64
	ppr   int // pulses per revolution, 0 disables turns
}

// NewCounter returns a counter starting at zero.
func NewCounter(pulsesPerRevolution int) *Counter {
	return &Counter{ppr: pulsesPerRevolution}
}

// Apply adds delta to the running count and returns the new count.
func (c *Counter) Apply(delta int) int64 {
	c.count += int64(delta)
	return c.count
}

// Count returns the accumulated count.
func (c *Counter) Count() int64 {
	return c.count
}

// Turns returns the number of whole revolutions, or false when turns are
// disabled.
func (c *Counter) Turns() (int64, bool) {
	return TurnsOf(c.count, c.ppr)
}

// TurnsOf floors count / pulsesPerRevolution. A zero divisor disables the
// output entirely rather than reporting zero.
func TurnsOf(count int64, pulsesPerRevolution int) (int64, bool) {
	if pulsesPerRevolution <= 0 {
		return 0, false
	}
	p := int64(pulsesPerRevolution)
	q := count / p
	if count%p != 0 && count < 0 {
		q--
	}
	return q, true
}
