package monitoring

import (
	"sync"

	"github.com/sarchlab/metersim/sim"
)

// CycleStats summarizes the cycles run by the bridges.
type CycleStats struct {
	Requested  uint64 `json:"requested"`
	Notified   uint64 `json:"notified"`
	Failed     uint64 `json:"failed"`
	LastID     string `json:"last_id"`
	LastUptime int32  `json:"last_uptime"`
	LastError  string `json:"last_error,omitempty"`
}

// A CycleCounter is a hook that counts the cycles of the bridges it is
// attached to.
type CycleCounter struct {
	lock  sync.Mutex
	stats CycleStats
}

// NewCycleCounter creates a CycleCounter.
func NewCycleCounter() *CycleCounter {
	return &CycleCounter{}
}

// Func counts finished cycles.
func (c *CycleCounter) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterCycle {
		return
	}

	cycle, ok := ctx.Item.(*sim.Cycle)
	if !ok {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	switch cycle.Trigger {
	case sim.TriggerRequest:
		c.stats.Requested++
	case sim.TriggerNotify:
		c.stats.Notified++
	}

	c.stats.LastID = cycle.ID
	c.stats.LastUptime = cycle.Snapshot.Now

	if cycle.Err != nil {
		c.stats.Failed++
		c.stats.LastError = cycle.Err.Error()
	}
}

// Stats returns a copy of the statistics.
func (c *CycleCounter) Stats() CycleStats {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stats
}
