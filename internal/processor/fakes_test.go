package processor

import (
	"context"
	"fmt"
	"sync"

	"repairhub/internal/domain/checkpoint"
	"repairhub/internal/domain/event"
	"repairhub/internal/domain/report"
)

// fakeRepository implements Repository with add-if-new semantics.
type fakeRepository struct {
	mu      sync.Mutex
	reports map[string]*report.RepairReport
	err     error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{reports: make(map[string]*report.RepairReport)}
}

func (f *fakeRepository) AddIfNew(_ context.Context, r *report.RepairReport) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.reports[r.ID]; ok {
		return false, nil
	}
	f.reports[r.ID] = r
	return true, nil
}

func (f *fakeRepository) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

// fakeOrderer implements PartOrderer.
type fakeOrderer struct {
	mu      sync.Mutex
	orders  []int
	err     error
	orderFn func(ctx context.Context, partID int) error
}

func (f *fakeOrderer) OrderPart(ctx context.Context, partID int, _ string) error {
	if f.orderFn != nil {
		if err := f.orderFn(ctx, partID); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.orders = append(f.orders, partID)
	return nil
}

func (f *fakeOrderer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// fakeStore implements checkpoint.Store and records every write.
type fakeStore struct {
	mu     sync.Mutex
	writes []checkpoint.Checkpoint
	err    error
}

func (f *fakeStore) CreateContainerIfAbsent(context.Context) error { return nil }

func (f *fakeStore) ReadPosition(_ context.Context, partition string) (*checkpoint.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].Partition == partition {
			cp := f.writes[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) WritePosition(_ context.Context, cp checkpoint.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeStore) snapshot() []checkpoint.Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]checkpoint.Checkpoint(nil), f.writes...)
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeDeadLetter struct {
	mu     sync.Mutex
	events []event.Event
}

// Publish fails like a real producer when its context is already done.
func (f *fakeDeadLetter) Publish(ctx context.Context, ev event.Event, _ error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeDeadLetter) published() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Event(nil), f.events...)
}

func reportEvent(partition string, offset int64, id string) event.Event {
	return event.Event{
		MessageID: fmt.Sprintf("repair-reports/%s/%d", partition, offset),
		Partition: partition,
		Offset:    offset,
		Payload:   []byte(fmt.Sprintf(`{"id":%q,"title":"pump failure"}`, id)),
	}
}
