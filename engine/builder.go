package engine

import (
	"time"

	"github.com/sarchlab/metersim/sim"
)

// Builder can build simulators.
type Builder struct {
	startUTC int64
	voltage  [sim.NumPhases]complex128
}

// MakeBuilder returns a builder of a simulator that starts now, without grid
// voltage.
func MakeBuilder() Builder {
	return Builder{
		startUTC: time.Now().Unix(),
	}
}

// WithStartUTC sets the Unix time at uptime 0.
func (b Builder) WithStartUTC(t int64) Builder {
	b.startUTC = t
	return b
}

// WithVoltage sets the initial grid voltage.
func (b Builder) WithVoltage(v [sim.NumPhases]complex128) Builder {
	b.voltage = v
	return b
}

// Build creates the simulator at uptime 0.
func (b Builder) Build() *Simulator {
	s := &Simulator{
		voltage: b.voltage,
	}
	s.startUTC.Store(b.startUTC)

	return s
}
