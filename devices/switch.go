package devices

import (
	"sync"

	"github.com/sarchlab/metersim/sim"
)

// Switch is a device with an on and an off state, such as a relay. Changing
// the state notifies the host.
type Switch struct {
	*DeviceBase

	onCurrent  [sim.NumPhases]complex128
	offCurrent [sim.NumPhases]complex128

	lock sync.Mutex
	on   bool
}

// NewSwitch creates a Switch, initially off.
func NewSwitch(
	name string,
	onCurrent, offCurrent [sim.NumPhases]complex128,
) *Switch {
	return &Switch{
		DeviceBase: NewDeviceBase(name),
		onCurrent:  onCurrent,
		offCurrent: offCurrent,
	}
}

// IsOn tells if the switch is on.
func (d *Switch) IsOn() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.on
}

// Set changes the state of the switch. The host is notified only if the state
// actually changes.
func (d *Switch) Set(on bool) {
	d.lock.Lock()
	changed := d.on != on
	d.on = on
	d.lock.Unlock()

	if changed {
		d.Notify()
	}
}

// Toggle flips the state of the switch.
func (d *Switch) Toggle() {
	d.lock.Lock()
	d.on = !d.on
	d.lock.Unlock()

	d.Notify()
}

// Update returns the current of the present state.
func (d *Switch) Update(_ sim.Snapshot) sim.Contribution {
	c := sim.NewContribution()

	if d.IsOn() {
		c.Current = d.onCurrent
	} else {
		c.Current = d.offCurrent
	}

	return c
}
