package monitoring

import (
	"sync"
	"time"
)

// ProgressStatus is what the monitor reports about a progress bar.
type ProgressStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
}

// A ProgressBar tracks how many simulated seconds of a run have elapsed.
type ProgressBar struct {
	lock   sync.Mutex
	status ProgressStatus
}

// SetFinished sets the number of finished elements. Values over the total
// are capped.
func (b *ProgressBar) SetFinished(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.status.Finished = min(amount, b.status.Total)
}

// Status returns a copy of the current state of the bar.
func (b *ProgressBar) Status() ProgressStatus {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.status
}
