package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"repairhub/internal/domain/checkpoint"
	"repairhub/internal/domain/event"
	"repairhub/internal/domain/report"
	"repairhub/internal/processor"
)

// fakeSource hands out the assignments pushed on its channel.
type fakeSource struct {
	assignments chan *fakeAssignment
	joinErrs    chan error

	mu     sync.Mutex
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		assignments: make(chan *fakeAssignment, 4),
		joinErrs:    make(chan error, 4),
	}
}

func (s *fakeSource) Join(ctx context.Context) (event.Assignment, error) {
	select {
	case err := <-s.joinErrs:
		return nil, err
	default:
	}
	select {
	case a := <-s.assignments:
		return a, nil
	case err := <-s.joinErrs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeAssignment serves one in-memory stream per partition.
type fakeAssignment struct {
	partitions []string
	streams    map[string]chan event.Event
	revoked    chan struct{}

	mu     sync.Mutex
	opened map[string]int64
}

func newFakeAssignment(partitions ...string) *fakeAssignment {
	a := &fakeAssignment{
		partitions: partitions,
		streams:    make(map[string]chan event.Event),
		revoked:    make(chan struct{}),
		opened:     make(map[string]int64),
	}
	for _, p := range partitions {
		a.streams[p] = make(chan event.Event, 256)
	}
	return a
}

func (a *fakeAssignment) Partitions() []string { return a.partitions }

func (a *fakeAssignment) Revoked() <-chan struct{} { return a.revoked }

func (a *fakeAssignment) Open(_ context.Context, partition string, offset int64) (event.Stream, error) {
	ch, ok := a.streams[partition]
	if !ok {
		return nil, fmt.Errorf("unknown partition %s", partition)
	}
	a.mu.Lock()
	a.opened[partition] = offset
	a.mu.Unlock()
	return &fakeStream{events: ch}, nil
}

func (a *fakeAssignment) openedAt(partition string) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, ok := a.opened[partition]
	return off, ok
}

func (a *fakeAssignment) push(partition string, offsets ...int64) {
	for _, off := range offsets {
		a.streams[partition] <- event.Event{
			MessageID: fmt.Sprintf("%s-%d", partition, off),
			Partition: partition,
			Offset:    off,
			Payload:   []byte(fmt.Sprintf(`{"id":"report-%s-%d"}`, partition, off)),
		}
	}
}

type fakeStream struct {
	events chan event.Event
}

func (s *fakeStream) Next(ctx context.Context) (event.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error { return nil }

// memStore is an in-memory checkpoint.Store.
type memStore struct {
	mu           sync.Mutex
	checkpoints  map[string]checkpoint.Checkpoint
	writes       int
	containerErr error
}

func newMemStore() *memStore {
	return &memStore{checkpoints: make(map[string]checkpoint.Checkpoint)}
}

func (s *memStore) CreateContainerIfAbsent(context.Context) error { return s.containerErr }

func (s *memStore) ReadPosition(_ context.Context, partition string) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[partition]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (s *memStore) WritePosition(_ context.Context, cp checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if cur, ok := s.checkpoints[cp.Partition]; ok && cur.Offset >= cp.Offset {
		return nil
	}
	s.checkpoints[cp.Partition] = cp
	return nil
}

func (s *memStore) get(partition string) (checkpoint.Checkpoint, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[partition], s.writes
}

// memLeaser is an in-memory checkpoint.Leaser.
type memLeaser struct {
	mu       sync.Mutex
	owners   map[string]string
	released []string
	acquired map[string]int
}

func newMemLeaser() *memLeaser {
	return &memLeaser{owners: make(map[string]string), acquired: make(map[string]int)}
}

func (l *memLeaser) Acquire(_ context.Context, partition, owner string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.owners[partition]; ok && cur != owner {
		return false, nil
	}
	l.owners[partition] = owner
	l.acquired[partition]++
	return true, nil
}

func (l *memLeaser) Renew(_ context.Context, partition, owner string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[partition] != owner {
		return checkpoint.ErrLeaseLost
	}
	return nil
}

func (l *memLeaser) Release(_ context.Context, partition, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[partition] == owner {
		delete(l.owners, partition)
		l.released = append(l.released, partition)
	}
	return nil
}

func (l *memLeaser) ownerOf(partition string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owners[partition]
}

func (l *memLeaser) acquisitions(partition string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired[partition]
}

// expire drops the lease as if its TTL ran out with nobody waiting for it.
func (l *memLeaser) expire(partition string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.owners, partition)
}

func (l *memLeaser) steal(partition, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[partition] = owner
}

// recordingHandler records handled offsets per partition and detects
// overlapping calls for the same partition.
type recordingHandler struct {
	mu       sync.Mutex
	handled  map[string][]int64
	inFlight map[string]bool
	overlap  bool
	resets   map[string]int
	hook     func(ev event.Event)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		handled:  make(map[string][]int64),
		inFlight: make(map[string]bool),
		resets:   make(map[string]int),
	}
}

func (h *recordingHandler) Handle(ctx context.Context, ev event.Event) processor.Outcome {
	if ctx.Err() != nil {
		return processor.Skipped
	}
	h.mu.Lock()
	if h.inFlight[ev.Partition] {
		h.overlap = true
	}
	h.inFlight[ev.Partition] = true
	hook := h.hook
	h.mu.Unlock()

	if hook != nil {
		hook(ev)
	}

	h.mu.Lock()
	h.inFlight[ev.Partition] = false
	h.handled[ev.Partition] = append(h.handled[ev.Partition], ev.Offset)
	h.mu.Unlock()
	return processor.Processed
}

func (h *recordingHandler) ResetPartition(partition string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resets[partition]++
}

func (h *recordingHandler) offsets(partition string) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.handled[partition]...)
}

func (h *recordingHandler) hadOverlap() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.overlap
}

// reportRepo and partOrderer back a real processor in scenario tests.
type reportRepo struct {
	mu  sync.Mutex
	ids map[string]int
}

func (r *reportRepo) AddIfNew(_ context.Context, rep *report.RepairReport) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = make(map[string]int)
	}
	r.ids[rep.ID]++
	return r.ids[rep.ID] == 1, nil
}

type partOrderer struct{}

func (partOrderer) OrderPart(context.Context, int, string) error { return nil }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
