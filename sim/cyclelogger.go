package sim

import (
	"log"
)

// CycleLogger is a hook that prints one line for every finished cycle.
type CycleLogger struct {
	logger *log.Logger
}

// NewCycleLogger returns a new CycleLogger which will write in to the logger
func NewCycleLogger(logger *log.Logger) *CycleLogger {
	return &CycleLogger{logger: logger}
}

// Func writes the cycle information into the logger
func (h *CycleLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosAfterCycle {
		return
	}

	cycle, ok := ctx.Item.(*Cycle)
	if !ok {
		return
	}

	if cycle.Err != nil {
		h.logger.Printf("%d, cycle %s, %s, error: %v",
			cycle.Snapshot.Now, cycle.ID, cycle.Trigger, cycle.Err)
		return
	}

	c := cycle.Aggregate
	h.logger.Printf("%d, cycle %s, %s, I=[%.3f %.3f %.3f], next %d",
		cycle.Snapshot.Now, cycle.ID, cycle.Trigger,
		c.Current[0], c.Current[1], c.Current[2], c.NextUpdate)
}
