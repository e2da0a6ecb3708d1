package devices

import (
	"fmt"

	"github.com/sarchlab/metersim/config"
	"github.com/sarchlab/metersim/sim"
)

// defaultTolerance is used by voltage rules that do not give one (V).
const defaultTolerance = 1e-3

// FromConfig creates the device described by the configuration.
func FromConfig(c config.Device) (sim.NamedDevice, error) {
	switch c.Kind {
	case "constant":
		return NewConstant(c.Name, config.Phasors(c.Current)), nil
	case "noop":
		return NewNoOp(c.Name), nil
	case "switch":
		d := NewSwitch(c.Name,
			config.Phasors(c.Current), config.Phasors(c.OffCurrent))
		d.on = c.On

		return d, nil
	case "ramp":
		return NewRamp(c.Name, config.Phasors(c.Slope), c.Until, c.Step), nil
	case "voltage":
		var rules [sim.NumPhases]*VoltageRule
		for _, t := range c.Targets {
			if t.Phase < 0 || t.Phase >= sim.NumPhases {
				return nil, fmt.Errorf("device %s: invalid phase %d",
					c.Name, t.Phase)
			}

			tolerance := t.Tolerance
			if tolerance == 0 {
				tolerance = defaultTolerance
			}

			rules[t.Phase] = &VoltageRule{
				Voltage:   t.Voltage.Complex(),
				Tolerance: tolerance,
				Current:   t.Current.Complex(),
			}
		}

		return NewVoltageDependent(c.Name, rules), nil
	default:
		return nil, fmt.Errorf("device %s: unknown kind %q", c.Name, c.Kind)
	}
}
