package sim

import "math"

// NumPhases is the number of phases a meter measures.
const NumPhases = 3

// NoUpdateScheduled is the next-update time of a contribution that does not
// need to be re-evaluated at any particular time.
const NoUpdateScheduled int32 = math.MaxInt32

// UpdateNeededNow is the next-update time that asks for an immediate
// re-evaluation.
const UpdateNeededNow int32 = 0

// A Snapshot is what a device can observe about the meter during one cycle.
type Snapshot struct {
	// Voltage holds the phase voltage phasors (V).
	Voltage [NumPhases]complex128

	// Now is the simulated uptime in seconds.
	Now int32

	// NowUTC is the simulated absolute time in Unix seconds.
	NowUTC int64
}

// A Contribution is the current a device adds to the meter.
type Contribution struct {
	// Current holds the phase current phasors (A).
	Current [NumPhases]complex128

	// NextUpdate is the uptime at which the device wants to be evaluated
	// again, or NoUpdateScheduled.
	NextUpdate int32
}

// NewContribution returns a contribution with no current and no scheduled
// update. It is the identity of Accumulate.
func NewContribution() Contribution {
	return Contribution{NextUpdate: NoUpdateScheduled}
}

// HasScheduledUpdate tells if the contribution requests a future update.
func (c Contribution) HasScheduledUpdate() bool {
	return c.NextUpdate != NoUpdateScheduled
}

// Accumulate merges from into into. Currents are added phase by phase and
// the earliest next-update time wins.
func Accumulate(into *Contribution, from Contribution) {
	for i := 0; i < NumPhases; i++ {
		into.Current[i] += from.Current[i]
	}

	if from.NextUpdate < into.NextUpdate {
		into.NextUpdate = from.NextUpdate
	}
}

// Fold reduces a list of contributions, starting from NewContribution.
func Fold(contributions ...Contribution) Contribution {
	agg := NewContribution()
	for _, c := range contributions {
		Accumulate(&agg, c)
	}

	return agg
}
