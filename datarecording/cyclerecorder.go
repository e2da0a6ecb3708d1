package datarecording

import (
	"github.com/sarchlab/metersim/engine"
	"github.com/sarchlab/metersim/sim"
)

// Table names used by the recorders.
const (
	CycleTable = "cycles"
	StepTable  = "steps"
)

// CycleEntry is the row recorded for every finished bridge cycle.
type CycleEntry struct {
	ID         string
	Cause      string
	Now        int32
	NowUTC     int64
	I1Re, I1Im float64
	I2Re, I2Im float64
	I3Re, I3Im float64
	NextUpdate int32
	Error      string
}

// StepEntry is the row recorded for every simulator step.
type StepEntry struct {
	FromUptime int32
	ToUptime   int32
	Requests   int
	Error      string
}

// CycleRecorder is a hook that records the cycles of a bridge.
type CycleRecorder struct {
	recorder DataRecorder
}

// NewCycleRecorder creates the cycles table and returns the hook that fills
// it.
func NewCycleRecorder(r DataRecorder) *CycleRecorder {
	r.CreateTable(CycleTable, CycleEntry{})

	return &CycleRecorder{recorder: r}
}

// Func records the cycle once it is finished.
func (h *CycleRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterCycle {
		return
	}

	cycle, ok := ctx.Item.(*sim.Cycle)
	if !ok {
		return
	}

	entry := CycleEntry{
		ID:         cycle.ID,
		Cause:      cycle.Trigger.String(),
		Now:        cycle.Snapshot.Now,
		NowUTC:     cycle.Snapshot.NowUTC,
		I1Re:       real(cycle.Aggregate.Current[0]),
		I1Im:       imag(cycle.Aggregate.Current[0]),
		I2Re:       real(cycle.Aggregate.Current[1]),
		I2Im:       imag(cycle.Aggregate.Current[1]),
		I3Re:       real(cycle.Aggregate.Current[2]),
		I3Im:       imag(cycle.Aggregate.Current[2]),
		NextUpdate: cycle.Aggregate.NextUpdate,
	}

	if cycle.Err != nil {
		entry.Error = cycle.Err.Error()
	}

	h.recorder.InsertData(CycleTable, entry)
}

// StepRecorder is a hook that records the steps of a simulator.
type StepRecorder struct {
	recorder DataRecorder
}

// NewStepRecorder creates the steps table and returns the hook that fills it.
func NewStepRecorder(r DataRecorder) *StepRecorder {
	r.CreateTable(StepTable, StepEntry{})

	return &StepRecorder{recorder: r}
}

// Func records the step once it is done.
func (h *StepRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != engine.HookPosAfterStep {
		return
	}

	step, ok := ctx.Item.(*engine.Step)
	if !ok {
		return
	}

	entry := StepEntry{
		FromUptime: step.From,
		ToUptime:   step.To,
		Requests:   step.Requests,
	}

	if step.Err != nil {
		entry.Error = step.Err.Error()
	}

	h.recorder.InsertData(StepTable, entry)
}
