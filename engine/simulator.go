// Package engine provides a small meter simulator that drives bridges. It
// keeps the simulated uptime, the grid voltage and the current drawn by the
// devices, and integrates the active energy over time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/metersim/sim"
)

// MaxProviders is the number of providers a simulator can serve at once.
const MaxProviders = 32

var (
	// ErrRunnerActive is returned when the simulator is stepped manually
	// while a runner drives it.
	ErrRunnerActive = errors.New("a runner is driving the simulator")

	// ErrNoFreeSlot is returned when MaxProviders providers are already open.
	ErrNoFreeSlot = errors.New("no free provider slot")

	// ErrNegativeStep is returned when asked to step backwards.
	ErrNegativeStep = errors.New("cannot step backwards")

	// ErrUptimeOverflow is returned when a step would take the uptime past
	// math.MaxInt32.
	ErrUptimeOverflow = errors.New("uptime would overflow")
)

// HookPosBeforeStep triggers before the simulator moves forward.
var HookPosBeforeStep = &sim.HookPos{Name: "BeforeStep"}

// HookPosAfterStep triggers after the simulator moved forward.
var HookPosAfterStep = &sim.HookPos{Name: "AfterStep"}

// A Step is the hook item describing one call to move the simulator forward.
type Step struct {
	From, To int32

	// Requests counts the times the providers were asked for their current.
	Requests int

	Err error
}

// Simulator is a simple meter engine. It implements sim.Engine, and every
// opened provider gets its own sim.Handle.
type Simulator struct {
	sim.HookableBase

	stepLock     sync.Mutex
	uptime       atomic.Int32
	startUTC     atomic.Int64
	runnerActive atomic.Bool

	// stateLock guards the fields below. It is never held while calling a
	// provider.
	stateLock sync.Mutex
	voltage   [sim.NumPhases]complex128
	slots     [MaxProviders]*slot
	energy    [sim.NumPhases]float64
}

type slot struct {
	simulator *Simulator
	index     int
	provider  sim.Provider

	// Guarded by the simulator state lock. pushes counts the contributions
	// the provider delivered through Update. forced keeps the slot due until
	// the provider is asked again.
	contribution sim.Contribution
	pushes       uint64
	forced       bool
}

func (s *slot) Uptime() int32 {
	return s.simulator.Uptime()
}

func (s *slot) TimeUTC() int64 {
	return s.simulator.TimeUTC()
}

func (s *slot) Update(c sim.Contribution) {
	s.simulator.stateLock.Lock()
	defer s.simulator.stateLock.Unlock()

	s.pushes++
	s.contribution = c
	s.simulator.clampNextUpdate(s)
}

// pushCount returns the number of contributions delivered through Update.
func (s *slot) pushCount() uint64 {
	s.simulator.stateLock.Lock()
	defer s.simulator.stateLock.Unlock()

	return s.pushes
}

// storeReply keeps a contribution returned by Provider.Request, unless the
// provider delivered one through Update since the request was sent. That one
// is at least as recent.
func (s *slot) storeReply(c sim.Contribution, pushesBefore uint64) {
	s.simulator.stateLock.Lock()
	defer s.simulator.stateLock.Unlock()

	if s.pushes != pushesBefore {
		return
	}

	s.contribution = c
	s.simulator.clampNextUpdate(s)
}

func (s *slot) Close() {
	s.simulator.stateLock.Lock()
	defer s.simulator.stateLock.Unlock()

	if s.simulator.slots[s.index] == s {
		s.simulator.slots[s.index] = nil
	}
}

// Open registers a provider. The provider is asked for its current at the
// next step.
func (s *Simulator) Open(p sim.Provider) (sim.Handle, error) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	for i, existing := range s.slots {
		if existing != nil {
			continue
		}

		h := &slot{
			simulator: s,
			index:     i,
			provider:  p,
			contribution: sim.Contribution{
				NextUpdate: sim.UpdateNeededNow,
			},
			forced: true,
		}
		s.slots[i] = h

		return h, nil
	}

	return nil, ErrNoFreeSlot
}

// NumProviders returns the number of open providers.
func (s *Simulator) NumProviders() int {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	n := 0
	for _, h := range s.slots {
		if h != nil {
			n++
		}
	}

	return n
}

// Uptime returns the simulated seconds since the simulator started.
func (s *Simulator) Uptime() int32 {
	return s.uptime.Load()
}

// StartUTC returns the Unix time at uptime 0.
func (s *Simulator) StartUTC() int64 {
	return s.startUTC.Load()
}

// TimeUTC returns the current simulated Unix time.
func (s *Simulator) TimeUTC() int64 {
	return s.startUTC.Load() + int64(s.uptime.Load())
}

// SetTimeUTC changes the Unix time the current uptime corresponds to.
func (s *Simulator) SetTimeUTC(t int64) {
	s.startUTC.Store(t - int64(s.uptime.Load()))
}

// Voltage returns the grid voltage.
func (s *Simulator) Voltage() [sim.NumPhases]complex128 {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	return s.voltage
}

// SetVoltage changes the grid voltage. All the providers are asked for their
// current again at the next step.
func (s *Simulator) SetVoltage(v [sim.NumPhases]complex128) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	s.voltage = v
	for _, h := range s.slots {
		if h != nil {
			h.contribution.NextUpdate = sim.UpdateNeededNow
			h.forced = true
		}
	}
}

// Current returns the total current drawn by the providers.
func (s *Simulator) Current() [sim.NumPhases]complex128 {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	return s.total().Current
}

// NextUpdate returns the earliest uptime a provider asked to be updated at,
// or sim.NoUpdateScheduled.
func (s *Simulator) NextUpdate() int32 {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	return s.total().NextUpdate
}

// Energy returns the active energy consumed on each phase, in Wh.
func (s *Simulator) Energy() [sim.NumPhases]float64 {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	return s.energy
}

func (s *Simulator) total() sim.Contribution {
	agg := sim.NewContribution()
	for _, h := range s.slots {
		if h != nil {
			sim.Accumulate(&agg, h.contribution)
		}
	}

	return agg
}

// clampNextUpdate makes sure the provider is not asked twice for the same
// uptime, unless it has been forced to update.
func (s *Simulator) clampNextUpdate(h *slot) {
	if h.forced {
		h.contribution.NextUpdate = sim.UpdateNeededNow
		return
	}

	now := s.uptime.Load()
	if h.contribution.NextUpdate <= now {
		h.contribution.NextUpdate = int32(min(int64(now)+1, math.MaxInt32))
	}
}

// StepForward advances the simulation by the given number of seconds. The
// providers are asked for their current whenever one of them scheduled an
// update within the step. It fails while a runner drives the simulator.
func (s *Simulator) StepForward(ctx context.Context, seconds int32) error {
	if s.runnerActive.Load() {
		return ErrRunnerActive
	}

	return s.step(ctx, seconds)
}

func (s *Simulator) step(ctx context.Context, seconds int32) error {
	if seconds < 0 {
		return fmt.Errorf("%w: %d s", ErrNegativeStep, seconds)
	}

	s.stepLock.Lock()
	defer s.stepLock.Unlock()

	from := s.uptime.Load()
	if seconds > math.MaxInt32-from {
		return fmt.Errorf("%w: %d s from %d s", ErrUptimeOverflow, seconds, from)
	}

	step := &Step{From: from, To: from + seconds}

	hookCtx := sim.HookCtx{
		Domain: s,
		Pos:    HookPosBeforeStep,
		Item:   step,
	}
	s.InvokeHook(hookCtx)

	step.Err = s.advance(ctx, step)

	hookCtx.Pos = HookPosAfterStep
	s.InvokeHook(hookCtx)

	return step.Err
}

func (s *Simulator) advance(ctx context.Context, step *Step) error {
	for {
		now := s.uptime.Load()

		s.stateLock.Lock()
		next := min(max(s.total().NextUpdate, now), step.To)
		s.accumulateEnergy(next - now)
		s.uptime.Store(next)
		due := s.dueSlots(next)
		s.stateLock.Unlock()

		if len(due) > 0 {
			step.Requests++

			err := s.request(ctx, due)
			if err != nil {
				return err
			}
		}

		if next >= step.To {
			return nil
		}
	}
}

// dueSlots returns all the slots if any of them needs an update at now. The
// providers are always updated together so that they see the same snapshot.
func (s *Simulator) dueSlots(now int32) []*slot {
	var all []*slot

	due := false
	for _, h := range s.slots {
		if h == nil {
			continue
		}

		all = append(all, h)
		if h.contribution.NextUpdate <= now {
			due = true
		}
	}

	if !due {
		return nil
	}

	for _, h := range all {
		h.forced = false
	}

	return all
}

func (s *Simulator) request(ctx context.Context, due []*slot) error {
	snapshot := sim.Snapshot{
		Voltage: s.Voltage(),
		Now:     s.uptime.Load(),
		NowUTC:  s.TimeUTC(),
	}

	for _, h := range due {
		pushes := h.pushCount()

		c, err := h.provider.Request(ctx, snapshot)
		if err != nil {
			return fmt.Errorf("provider %d at %d s: %w", h.index, snapshot.Now, err)
		}

		h.storeReply(c, pushes)
	}

	return nil
}

// accumulateEnergy integrates the active power over the given seconds. The
// state lock must be held.
func (s *Simulator) accumulateEnergy(seconds int32) {
	if seconds <= 0 {
		return
	}

	current := s.total().Current
	for i := range s.energy {
		power := real(s.voltage[i] * cmplx.Conj(current[i]))
		s.energy[i] += power * float64(seconds) / 3600
	}
}
