package sim

import "context"

// TimeTeller can be used to get the simulated uptime.
type TimeTeller interface {
	Uptime() int32
}

// A UTCTeller tells the simulated Unix time. A bridge whose handle implements
// it stamps notification cycles with that time.
type UTCTeller interface {
	TimeUTC() int64
}

// A Provider computes the device contribution for the engine.
type Provider interface {
	// Request blocks until the aggregated contribution of all the devices
	// is available for the given snapshot.
	Request(ctx context.Context, s Snapshot) (Contribution, error)
}

// A Handle is the engine-side resource that a bridge holds while it is
// alive.
//
// Uptime and Update are called from the bridge worker. They must not wait on
// anything the engine holds while it is blocked in Provider.Request.
type Handle interface {
	TimeTeller

	// Update delivers the aggregate of every successful cycle, in the order
	// the cycles ran. For a requested cycle it is called before
	// Provider.Request returns, so an engine must not let the returned value
	// replace one delivered here later.
	Update(c Contribution)

	// Close releases the handle.
	Close()
}

// An Engine is the simulation engine that a bridge serves.
type Engine interface {
	// Open registers the provider with the engine.
	Open(p Provider) (Handle, error)
}
