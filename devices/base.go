// Package devices provides ready-made devices that can be plugged into a
// bridge.
package devices

import (
	"math"
	"math/cmplx"

	"github.com/sarchlab/metersim/sim"
)

// Polar returns the phasor of the given magnitude and angle in degrees.
func Polar(magnitude, degrees float64) complex128 {
	return cmplx.Rect(magnitude, degrees*math.Pi/180)
}

// DeviceBase implements the host related part of sim.Device. Concrete
// devices embed it and only implement Update.
type DeviceBase struct {
	name string
	host sim.DeviceHost
}

// NewDeviceBase creates a DeviceBase with the given name.
func NewDeviceBase(name string) *DeviceBase {
	return &DeviceBase{name: name}
}

// Name returns the name of the device.
func (d *DeviceBase) Name() string {
	return d.name
}

// AttachTo records the host of the device.
func (d *DeviceBase) AttachTo(host sim.DeviceHost) {
	d.host = host
}

// Notify asks the host to evaluate the devices again. It does nothing if the
// device is not attached.
func (d *DeviceBase) Notify() {
	if d.host == nil {
		return
	}

	d.host.Notify()
}

// GetTime returns the uptime of the host, or 0 if the device is not attached.
func (d *DeviceBase) GetTime() int32 {
	if d.host == nil {
		return 0
	}

	return d.host.Uptime()
}
