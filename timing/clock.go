// Package timing provides the time sources that drive a simulation, most
// notably the virtual Clock that can be paused and sped up.
package timing

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// MaxSpeedup is the largest speedup a Clock accepts.
const MaxSpeedup = 10000

// ErrInvalidSpeedup is returned for a speedup outside [1, MaxSpeedup].
var ErrInvalidSpeedup = errors.New("invalid speedup")

// A TimeSource tells the absolute time in Unix seconds.
type TimeSource interface {
	Unix() int64
}

// SystemTime is the TimeSource backed by the system clock.
type SystemTime struct{}

// Unix returns the current system time.
func (SystemTime) Unix() int64 {
	return time.Now().Unix()
}

// A MonotonicSource returns the real time elapsed since a fixed, arbitrary
// origin. It must never go backwards.
type MonotonicSource func() time.Duration

// SystemMonotonic returns a MonotonicSource that relies on the monotonic
// reading of the Go runtime, so that adjustments of the system clock do not
// affect it.
func SystemMonotonic() MonotonicSource {
	origin := time.Now()

	return func() time.Duration {
		return time.Since(origin)
	}
}

// A Clock is a virtual clock. While running, it advances speedup times faster
// than real time. It can be stopped, resumed, sped up and set at any moment.
type Clock struct {
	lock sync.Mutex

	source   MonotonicSource
	start    time.Duration
	baseline time.Time
	speedup  int
	running  bool
}

func checkSpeedup(speedup int) error {
	if speedup < 1 || speedup > MaxSpeedup {
		return fmt.Errorf("%w: %d, must be within [1, %d]",
			ErrInvalidSpeedup, speedup, MaxSpeedup)
	}

	return nil
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.now()
}

func (c *Clock) now() time.Time {
	if !c.running {
		return c.baseline
	}

	elapsed := c.source() - c.start
	speedup := time.Duration(c.speedup)

	if elapsed <= math.MaxInt64/speedup {
		return c.baseline.Add(elapsed * speedup)
	}

	// The virtual elapsed time no longer fits in a time.Duration. Scale
	// whole seconds and the remainder separately.
	secs := int64(elapsed / time.Second)
	rem := elapsed % time.Second
	t := time.Unix(c.baseline.Unix()+secs*int64(speedup), int64(c.baseline.Nanosecond()))

	return t.In(c.baseline.Location()).Add(rem * speedup)
}

// Unix returns the current virtual time truncated to whole seconds.
func (c *Clock) Unix() int64 {
	return c.Now().Unix()
}

// Resume lets the clock run. It does nothing if the clock is running.
func (c *Clock) Resume() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.resume()
}

func (c *Clock) resume() {
	if c.running {
		return
	}

	c.start = c.source()
	c.running = true
}

// Stop freezes the clock at the current virtual time. It does nothing if the
// clock is stopped.
func (c *Clock) Stop() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.stop()
}

func (c *Clock) stop() {
	if !c.running {
		return
	}

	c.baseline = c.now()
	c.running = false
}

// SetSpeedup changes how fast the clock runs. The virtual time does not jump;
// the new speedup only applies from now on.
func (c *Clock) SetSpeedup(speedup int) error {
	if err := checkSpeedup(speedup); err != nil {
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.running {
		c.speedup = speedup
		return nil
	}

	c.stop()
	c.speedup = speedup
	c.resume()

	return nil
}

// SetTime moves the clock to t. A running clock keeps running from t.
func (c *Clock) SetTime(t time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.baseline = t
	c.start = c.source()
}

// Speedup returns the current speedup.
func (c *Clock) Speedup() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.speedup
}

// IsRunning tells if the clock is running.
func (c *Clock) IsRunning() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.running
}
