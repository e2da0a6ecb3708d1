package sim

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// BridgeState is the lifecycle state of a Bridge.
type BridgeState int32

// The states of a bridge. A bridge only moves forward through them.
const (
	BridgeCreated BridgeState = iota
	BridgeRunning
	BridgeFinished
)

func (s BridgeState) String() string {
	switch s {
	case BridgeCreated:
		return "created"
	case BridgeRunning:
		return "running"
	case BridgeFinished:
		return "finished"
	default:
		return "unknown"
	}
}

type result struct {
	contribution Contribution
	err          error
}

// A wakeup either carries a snapshot from the engine together with the
// channel to reply on, or is a parameterless notification.
type wakeup struct {
	notify   bool
	snapshot Snapshot
	reply    chan result
}

// A Bridge connects a set of devices to an engine. A single worker goroutine
// evaluates the devices whenever the engine requests it or a device notifies.
type Bridge struct {
	HookableBase

	handle Handle
	idGen  IDGenerator
	logger *log.Logger

	devices []Device

	state        atomic.Int32
	wakeups      chan wakeup
	closing      chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once

	// Owned by the worker.
	last        Snapshot
	lastFromReq bool
}

// NewBridge creates a bridge served by the given engine with the default
// settings.
func NewBridge(e Engine) (*Bridge, error) {
	return MakeBuilder().WithEngine(e).Build()
}

// AddDevice registers a device. Devices can only be added before the bridge
// starts.
func (b *Bridge) AddDevice(d Device) {
	if b.State() != BridgeCreated {
		log.Panic("cannot add a device after the bridge has started")
	}

	d.AttachTo(b)
	b.devices = append(b.devices, d)
}

// Devices returns the registered devices in registration order.
func (b *Bridge) Devices() []Device {
	return b.devices
}

// State returns the current lifecycle state.
func (b *Bridge) State() BridgeState {
	return BridgeState(b.state.Load())
}

// Start launches the worker.
func (b *Bridge) Start() error {
	if !b.state.CompareAndSwap(int32(BridgeCreated), int32(BridgeRunning)) {
		if b.State() == BridgeFinished {
			return ErrShutdown
		}

		return ErrAlreadyStarted
	}

	go b.run()

	return nil
}

// Request wakes the worker up with a snapshot and waits for the aggregated
// contribution of all the devices.
func (b *Bridge) Request(
	ctx context.Context,
	s Snapshot,
) (Contribution, error) {
	if b.State() == BridgeFinished {
		return NewContribution(), ErrShutdown
	}

	w := wakeup{snapshot: s, reply: make(chan result, 1)}

	select {
	case b.wakeups <- w:
	case <-b.closing:
		return NewContribution(), ErrShutdown
	case <-ctx.Done():
		return NewContribution(), ctx.Err()
	}

	select {
	case r := <-w.reply:
		return r.contribution, r.err
	case <-b.done:
		select {
		case r := <-w.reply:
			return r.contribution, r.err
		default:
			return NewContribution(), ErrShutdown
		}
	case <-ctx.Done():
		return NewContribution(), ctx.Err()
	}
}

// Notify schedules one more evaluation of all the devices. If a wakeup is
// already pending, the notification is merged into it, since that wakeup
// evaluates the devices after this call anyway.
func (b *Bridge) Notify() {
	if b.State() == BridgeFinished {
		return
	}

	select {
	case b.wakeups <- wakeup{notify: true}:
	default:
	}
}

// Uptime returns the simulated uptime of the engine.
func (b *Bridge) Uptime() int32 {
	return b.handle.Uptime()
}

// Shutdown stops the bridge. The cycle in progress, if any, completes; no
// other cycle starts. Shutdown returns after the worker has exited and the
// engine handle is released. Calling it again has no effect.
func (b *Bridge) Shutdown() {
	b.shutdownOnce.Do(func() {
		prev := BridgeState(b.state.Swap(int32(BridgeFinished)))
		close(b.closing)

		if prev == BridgeRunning {
			<-b.done
		} else {
			b.drain()
			close(b.done)
		}

		b.handle.Close()
	})
}

func (b *Bridge) run() {
	defer close(b.done)
	defer b.drain()

	for {
		select {
		case <-b.closing:
			return
		default:
		}

		select {
		case <-b.closing:
			return
		case w := <-b.wakeups:
			b.serve(w)
		}
	}
}

// drain rejects the wakeup left in the slot after shutdown.
func (b *Bridge) drain() {
	for {
		select {
		case w := <-b.wakeups:
			if w.reply != nil {
				w.reply <- result{
					contribution: NewContribution(),
					err:          ErrShutdown,
				}
			}
		default:
			return
		}
	}
}

func (b *Bridge) serve(w wakeup) {
	cycle := &Cycle{
		ID:      b.idGen.Generate(),
		Trigger: TriggerRequest,
	}

	if w.notify {
		cycle.Trigger = TriggerNotify
		cycle.Snapshot = b.refreshedSnapshot()
	} else {
		cycle.Snapshot = w.snapshot
		b.lastFromReq = true
	}

	b.last = cycle.Snapshot

	hookCtx := HookCtx{
		Domain: b,
		Pos:    HookPosBeforeCycle,
		Item:   cycle,
	}
	b.InvokeHook(hookCtx)

	cycle.Aggregate, cycle.Err = b.evaluate(cycle.Snapshot)

	hookCtx.Pos = HookPosAfterCycle
	b.InvokeHook(hookCtx)

	// Every aggregate goes through the handle from this goroutine, so the
	// engine receives them in cycle order.
	if cycle.Err == nil {
		b.handle.Update(cycle.Aggregate)
	}

	if !w.notify {
		w.reply <- result{contribution: cycle.Aggregate, err: cycle.Err}
		return
	}

	if cycle.Err != nil {
		b.logger.Printf("cycle %s (%s) failed: %v",
			cycle.ID, cycle.Trigger, cycle.Err)
	}
}

// refreshedSnapshot returns the last snapshot seen, moved to the current
// uptime of the engine. Without a UTCTeller handle, a notification before the
// first request carries no UTC time (NowUTC is 0).
func (b *Bridge) refreshedSnapshot() Snapshot {
	s := b.last
	now := b.handle.Uptime()

	switch t := b.handle.(type) {
	case UTCTeller:
		s.NowUTC = t.TimeUTC()
	default:
		if b.lastFromReq {
			s.NowUTC += int64(now) - int64(s.Now)
		}
	}

	s.Now = now

	return s
}

func (b *Bridge) evaluate(s Snapshot) (Contribution, error) {
	contributions := make([]Contribution, 0, len(b.devices))

	for i, d := range b.devices {
		c, err := updateDevice(i, d, s)
		if err != nil {
			return NewContribution(), err
		}

		contributions = append(contributions, c)
	}

	return Fold(contributions...), nil
}

func updateDevice(i int, d Device, s Snapshot) (c Contribution, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &DeviceError{Index: i, Name: deviceName(d), Value: v}
		}
	}()

	return d.Update(s), nil
}
