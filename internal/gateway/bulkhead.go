package gateway

import (
	"golang.org/x/sync/semaphore"

	"github.com/dangthobach/data-extraction/internal/common"
)

// Bulkhead is a concurrency ceiling for one class of admission work.
// Acquisition never blocks: requests beyond the ceiling fail fast with
// ErrOverloaded instead of queueing.
type Bulkhead struct {
	name string
	sem  *semaphore.Weighted
}

func NewBulkhead(name string, limit int64) *Bulkhead {
	if limit <= 0 {
		limit = 1
	}
	return &Bulkhead{name: name, sem: semaphore.NewWeighted(limit)}
}

// Acquire claims a slot or fails immediately.
func (b *Bulkhead) Acquire() error {
	if !b.sem.TryAcquire(1) {
		return common.NewAppError("ADMISSION_OVERLOAD", b.name+" is at capacity", common.ErrOverloaded)
	}
	return nil
}

// Release returns a slot.
func (b *Bulkhead) Release() {
	b.sem.Release(1)
}
