package processor

import (
	"sync"
	"sync/atomic"
)

// Tracker counts events handled per partition since that partition's last
// checkpoint. Each partition has its own counter so partitions never
// contend; updates to one counter are atomic.
type Tracker struct {
	counts sync.Map // partition -> *atomic.Int64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) counter(partition string) *atomic.Int64 {
	if c, ok := t.counts.Load(partition); ok {
		return c.(*atomic.Int64)
	}
	c, _ := t.counts.LoadOrStore(partition, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// Increment adds one to the partition's counter and returns the new value.
func (t *Tracker) Increment(partition string) int {
	return int(t.counter(partition).Add(1))
}

func (t *Tracker) Reset(partition string) {
	t.counter(partition).Store(0)
}

func (t *Tracker) Count(partition string) int {
	if c, ok := t.counts.Load(partition); ok {
		return int(c.(*atomic.Int64).Load())
	}
	return 0
}
