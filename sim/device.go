package sim

// A DeviceHost is the side of a bridge that devices can call back into.
type DeviceHost interface {
	TimeTeller

	// Notify asks the host to evaluate all the devices again as soon as
	// possible.
	Notify()
}

// A Device is a simulated appliance that draws or injects current.
type Device interface {
	// Update returns the contribution of the device given the meter state.
	// It runs on the bridge worker, so it must return promptly and must not
	// block. A device that contributes nothing returns NewContribution().
	Update(s Snapshot) Contribution

	// Notify tells the host that the device state has changed. It can be
	// called from any goroutine.
	Notify()

	// GetTime returns the simulated uptime of the host.
	GetTime() int32

	// AttachTo connects the device to the host that serves Notify and
	// GetTime.
	AttachTo(host DeviceHost)
}

// A NamedDevice is a device that carries a name.
type NamedDevice interface {
	Device

	Name() string
}

func deviceName(d Device) string {
	if named, ok := d.(NamedDevice); ok {
		return named.Name()
	}

	return ""
}
