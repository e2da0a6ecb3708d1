package engine

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/sarchlab/metersim/timing"
)

// DefaultPollInterval is how often a runner reads its time source.
const DefaultPollInterval = 100 * time.Millisecond

// A Runner moves a simulator forward so that its UTC time follows a time
// source. While a runner is active, the simulator cannot be stepped manually.
type Runner struct {
	simulator *Simulator
	source    timing.TimeSource
	interval  time.Duration
	logger    *log.Logger

	lock   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// RunnerBuilder can build runners.
type RunnerBuilder struct {
	source   timing.TimeSource
	interval time.Duration
	logger   *log.Logger
}

// MakeRunnerBuilder returns a builder of a runner that follows the system
// time.
func MakeRunnerBuilder() RunnerBuilder {
	return RunnerBuilder{
		source:   timing.SystemTime{},
		interval: DefaultPollInterval,
	}
}

// WithTimeSource sets the time the runner follows, usually a timing.Clock.
func (b RunnerBuilder) WithTimeSource(s timing.TimeSource) RunnerBuilder {
	b.source = s
	return b
}

// WithPollInterval sets how often the time source is read.
func (b RunnerBuilder) WithPollInterval(d time.Duration) RunnerBuilder {
	b.interval = d
	return b
}

// WithLogger sets the logger that reports failed steps.
func (b RunnerBuilder) WithLogger(l *log.Logger) RunnerBuilder {
	b.logger = l
	return b
}

// Build creates a runner for the given simulator.
func (b RunnerBuilder) Build(s *Simulator) *Runner {
	r := &Runner{
		simulator: s,
		source:    b.source,
		interval:  b.interval,
		logger:    b.logger,
	}

	if r.logger == nil {
		r.logger = log.Default()
	}

	if r.interval <= 0 {
		r.interval = DefaultPollInterval
	}

	return r
}

// IsRunning tells if the runner is active.
func (r *Runner) IsRunning() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.cancel != nil
}

// Start launches the runner. It fails if another runner is already driving
// the simulator.
func (r *Runner) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.cancel != nil || !r.simulator.runnerActive.CompareAndSwap(false, true) {
		return ErrRunnerActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, r.done)

	return nil
}

// Stop halts the runner and waits for it to exit. The step in progress is
// abandoned at the request it is waiting for.
func (r *Runner) Stop() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.cancel == nil {
		return
	}

	r.cancel()
	<-r.done

	r.cancel = nil
	r.simulator.runnerActive.Store(false)
}

func (r *Runner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.catchUp(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// catchUp steps the simulator to the time of the source. A source that went
// backwards leaves the simulator where it is.
func (r *Runner) catchUp(ctx context.Context) {
	uptime := r.simulator.Uptime()
	target := r.source.Unix() - r.simulator.StartUTC()
	seconds := min(target, math.MaxInt32-1) - int64(uptime)

	if seconds < 0 {
		return
	}

	if seconds == 0 && r.simulator.NextUpdate() > uptime {
		return
	}

	err := r.simulator.step(ctx, int32(seconds))
	if err != nil && ctx.Err() == nil {
		r.logger.Printf("runner failed to step to %d s: %v", target, err)
	}
}
