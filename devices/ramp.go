package devices

import "github.com/sarchlab/metersim/sim"

// Ramp is a device whose current grows linearly with the uptime, until it
// stops drawing current at a given uptime.
type Ramp struct {
	*DeviceBase

	slope [sim.NumPhases]complex128
	until int32
	step  int32
}

// NewRamp creates a Ramp. The current is slope times the uptime, updated
// every step seconds, until the uptime reaches until.
func NewRamp(
	name string,
	slope [sim.NumPhases]complex128,
	until, step int32,
) *Ramp {
	if step < 1 {
		step = 1
	}

	return &Ramp{
		DeviceBase: NewDeviceBase(name),
		slope:      slope,
		until:      until,
		step:       step,
	}
}

// Update returns the current at the snapshot uptime.
func (d *Ramp) Update(s sim.Snapshot) sim.Contribution {
	c := sim.NewContribution()
	if s.Now >= d.until {
		return c
	}

	for i := 0; i < sim.NumPhases; i++ {
		c.Current[i] = d.slope[i] * complex(float64(s.Now), 0)
	}

	c.NextUpdate = min(s.Now+d.step, d.until)

	return c
}
