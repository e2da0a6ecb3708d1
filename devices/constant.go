package devices

import "github.com/sarchlab/metersim/sim"

// Constant is a device that always draws the same current.
type Constant struct {
	*DeviceBase

	current [sim.NumPhases]complex128
}

// NewConstant creates a Constant device.
func NewConstant(name string, current [sim.NumPhases]complex128) *Constant {
	return &Constant{
		DeviceBase: NewDeviceBase(name),
		current:    current,
	}
}

// Update returns the constant current.
func (d *Constant) Update(_ sim.Snapshot) sim.Contribution {
	c := sim.NewContribution()
	c.Current = d.current

	return c
}

// NoOp is a device that contributes nothing.
type NoOp struct {
	*DeviceBase
}

// NewNoOp creates a NoOp device.
func NewNoOp(name string) *NoOp {
	return &NoOp{DeviceBase: NewDeviceBase(name)}
}

// Update returns an empty contribution.
func (d *NoOp) Update(_ sim.Snapshot) sim.Contribution {
	return sim.NewContribution()
}
