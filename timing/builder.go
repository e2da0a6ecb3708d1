package timing

import "time"

// ClockBuilder can build clocks.
type ClockBuilder struct {
	startTime time.Time
	speedup   int
	stopped   bool
	source    MonotonicSource
}

// MakeClockBuilder returns a builder of a real-time clock starting at the
// current time.
func MakeClockBuilder() ClockBuilder {
	return ClockBuilder{
		speedup: 1,
	}
}

// WithStartTime sets the virtual time the clock starts at.
func (b ClockBuilder) WithStartTime(t time.Time) ClockBuilder {
	b.startTime = t
	return b
}

// WithSpeedup sets the initial speedup.
func (b ClockBuilder) WithSpeedup(speedup int) ClockBuilder {
	b.speedup = speedup
	return b
}

// WithMonotonicSource replaces the real-time source of the clock.
func (b ClockBuilder) WithMonotonicSource(s MonotonicSource) ClockBuilder {
	b.source = s
	return b
}

// Stopped makes the clock start stopped.
func (b ClockBuilder) Stopped() ClockBuilder {
	b.stopped = true
	return b
}

// Build creates the clock.
func (b ClockBuilder) Build() (*Clock, error) {
	if err := checkSpeedup(b.speedup); err != nil {
		return nil, err
	}

	c := &Clock{
		source:   b.source,
		baseline: b.startTime,
		speedup:  b.speedup,
	}

	if c.source == nil {
		c.source = SystemMonotonic()
	}

	if c.baseline.IsZero() {
		c.baseline = time.Now()
	}

	if !b.stopped {
		c.resume()
	}

	return c, nil
}
