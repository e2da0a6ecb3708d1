package devices

import (
	"math/cmplx"

	"github.com/sarchlab/metersim/sim"
)

// A VoltageRule gives the current of one phase when its voltage is within
// Tolerance of Voltage.
type VoltageRule struct {
	Voltage   complex128
	Tolerance float64
	Current   complex128
}

// VoltageDependent is a device that reacts to the grid voltage.
type VoltageDependent struct {
	*DeviceBase

	rules [sim.NumPhases]*VoltageRule
}

// NewVoltageDependent creates a VoltageDependent device. A nil rule leaves the
// phase without current.
func NewVoltageDependent(
	name string,
	rules [sim.NumPhases]*VoltageRule,
) *VoltageDependent {
	return &VoltageDependent{
		DeviceBase: NewDeviceBase(name),
		rules:      rules,
	}
}

// Update returns the current of every phase whose voltage matches its rule.
func (d *VoltageDependent) Update(s sim.Snapshot) sim.Contribution {
	c := sim.NewContribution()

	for i, r := range d.rules {
		if r == nil {
			continue
		}

		if cmplx.Abs(s.Voltage[i]-r.Voltage) <= r.Tolerance {
			c.Current[i] = r.Current
		}
	}

	return c
}
