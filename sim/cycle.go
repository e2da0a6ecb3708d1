package sim

// CycleTrigger tells what started an evaluation cycle.
type CycleTrigger int

const (
	// TriggerRequest is a cycle requested by the engine with a snapshot.
	TriggerRequest CycleTrigger = iota

	// TriggerNotify is a cycle started by a device notification.
	TriggerNotify
)

func (t CycleTrigger) String() string {
	switch t {
	case TriggerRequest:
		return "request"
	case TriggerNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// A Cycle is one evaluation of all the devices of a bridge. It is the item of
// the cycle hooks.
type Cycle struct {
	ID        string
	Trigger   CycleTrigger
	Snapshot  Snapshot
	Aggregate Contribution
	Err       error
}
