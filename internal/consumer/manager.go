// Package consumer owns the lifecycle of the subscription to the
// partitioned log: joining the consumer group, running one sequential loop
// per owned partition, and draining those loops on rebalance or shutdown.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"repairhub/internal/domain/checkpoint"
	"repairhub/internal/domain/event"
	"repairhub/internal/processor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrInvalidState is returned by Start and Stop when called out of order.
var ErrInvalidState = errors.New("invalid consumer state transition")

var (
	partitionsOwned = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "consumer_partitions_owned",
		Help: "The number of partitions currently processed by this worker",
	})
	rebalances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_rebalances_total",
		Help: "The total number of partition assignments received",
	})
)

type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler processes one event. Handle is only ever called sequentially for a
// given partition.
type Handler interface {
	Handle(ctx context.Context, ev event.Event) processor.Outcome
	ResetPartition(partition string)
}

type Config struct {
	// Owner identifies this worker in partition leases.
	Owner        string
	LeaseTTL     time.Duration
	RetryBackoff time.Duration
}

type Manager struct {
	source   event.Source
	store    checkpoint.Store
	leaser   checkpoint.Leaser
	handler  Handler
	reporter *processor.Reporter
	logger   *slog.Logger
	cfg      Config

	mu           sync.Mutex
	state        State
	sourceClosed bool
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewManager(cfg Config, source event.Source, store checkpoint.Store, leaser checkpoint.Leaser, handler Handler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Manager{
		source:   source,
		store:    store,
		leaser:   leaser,
		handler:  handler,
		reporter: processor.NewReporter(logger),
		logger:   logger,
		cfg:      cfg,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Start prepares the checkpoint container and begins partition negotiation
// in the background. An error leaves the manager Stopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Stopped {
		m.mu.Unlock()
		return fmt.Errorf("start from %s: %w", m.state, ErrInvalidState)
	}
	if m.sourceClosed {
		m.mu.Unlock()
		return event.ErrSourceClosed
	}
	m.state = Starting
	m.mu.Unlock()

	m.logger.Debug("event consumer is starting")

	if err := m.store.CreateContainerIfAbsent(ctx); err != nil {
		m.setState(Stopped)
		return fmt.Errorf("create checkpoint container: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.state = Running
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(runCtx)
	}()

	m.logger.Info("event consumer started", "owner", m.cfg.Owner)
	return nil
}

// Stop stops admitting events, lets in-flight events finish, releases
// leases and leaves the consumer group. If ctx ends first Stop returns
// ctx.Err() and the drain completes in the background.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Running {
		m.mu.Unlock()
		return fmt.Errorf("stop from %s: %w", m.state, ErrInvalidState)
	}
	m.state = Stopping
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	m.logger.Debug("event consumer is stopping")
	cancel()

	stopped := make(chan error, 1)
	go func() {
		<-done
		err := m.source.Close()
		m.mu.Lock()
		m.sourceClosed = true
		m.state = Stopped
		m.mu.Unlock()
		m.logger.Info("event consumer stopped")
		stopped <- err
	}()

	select {
	case err := <-stopped:
		if err != nil {
			return fmt.Errorf("close event source: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context) {
	for ctx.Err() == nil {
		a, err := m.source.Join(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, event.ErrSourceClosed) {
				return
			}
			m.reporter.Report(ctx, err, processor.ErrorContext{Operation: "transport"})
			sleep(ctx, m.cfg.RetryBackoff)
			continue
		}

		rebalances.Inc()
		m.serve(ctx, a)
	}
}

// serve runs the partitions of one assignment until it is revoked or ctx ends.
func (m *Manager) serve(ctx context.Context, a event.Assignment) {
	partitions := a.Partitions()
	m.logger.Info("partitions assigned", "partitions", partitions)

	genCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, p := range partitions {
		wg.Add(1)
		go func(partition string) {
			defer wg.Done()
			m.runPartition(genCtx, a, partition)
		}(p)
	}

	select {
	case <-a.Revoked():
		m.logger.Info("partitions revoked", "partitions", partitions)
	case <-ctx.Done():
	}

	cancel()
	wg.Wait()
}

// runPartition keeps the partition owned for the lifetime of ctx. Losing the
// lease ends one stretch of ownership; the partition is then re-acquired as
// soon as nobody else holds it.
func (m *Manager) runPartition(ctx context.Context, a event.Assignment, partition string) {
	for ctx.Err() == nil {
		m.ownPartition(ctx, a, partition)
	}
}

// ownPartition processes the partition while this worker holds its lease.
func (m *Manager) ownPartition(ctx context.Context, a event.Assignment, partition string) {
	log := m.logger.With("partition", partition)

	if !m.acquireLease(ctx, partition) {
		return
	}
	partitionsOwned.Inc()
	defer partitionsOwned.Dec()
	defer m.releaseLease(ctx, partition)

	// Anything counted before this point was never checkpointed and will be
	// redelivered.
	m.handler.ResetPartition(partition)

	stream, ok := m.openStream(ctx, a, partition)
	if !ok {
		return
	}
	defer stream.Close()

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	go m.renewLease(loopCtx, stop, partition)

	events := make(chan event.Event)
	feederDone := make(chan struct{})
	go func() {
		defer close(feederDone)
		defer close(events)
		m.feed(loopCtx, stream, partition, events)
	}()

	log.Debug("partition loop started")
	defer log.Debug("partition loop stopped")

	for {
		select {
		case <-loopCtx.Done():
			<-feederDone
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if loopCtx.Err() != nil {
				// Stop was observed: the event is not admitted and will be
				// redelivered from the last checkpoint.
				<-feederDone
				return
			}
			m.handler.Handle(loopCtx, ev)
		}
	}
}

// feed pulls from the log and hands events to the partition worker one at a time.
func (m *Manager) feed(ctx context.Context, stream event.Stream, partition string, out chan<- event.Event) {
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.reporter.Report(ctx, err, processor.ErrorContext{Operation: "transport", Partition: partition})
			if !sleep(ctx, m.cfg.RetryBackoff) {
				return
			}
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) acquireLease(ctx context.Context, partition string) bool {
	for {
		ok, err := m.leaser.Acquire(ctx, partition, m.cfg.Owner, m.cfg.LeaseTTL)
		if err != nil {
			m.reporter.Report(ctx, err, processor.ErrorContext{Operation: "lease", Partition: partition})
		} else if ok {
			return true
		}
		if !sleep(ctx, m.cfg.RetryBackoff) {
			return false
		}
	}
}

func (m *Manager) renewLease(ctx context.Context, stop context.CancelFunc, partition string) {
	ticker := time.NewTicker(m.cfg.LeaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.leaser.Renew(ctx, partition, m.cfg.Owner, m.cfg.LeaseTTL)
			if err == nil || ctx.Err() != nil {
				continue
			}
			m.reporter.Report(ctx, err, processor.ErrorContext{Operation: "lease", Partition: partition})
			if errors.Is(err, checkpoint.ErrLeaseLost) {
				stop()
				return
			}
		}
	}
}

func (m *Manager) releaseLease(ctx context.Context, partition string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.leaser.Release(releaseCtx, partition, m.cfg.Owner); err != nil {
		m.reporter.Report(releaseCtx, err, processor.ErrorContext{Operation: "lease", Partition: partition})
	}
}

// openStream resumes the partition right after its checkpoint, or at the
// source's start policy when it has none.
func (m *Manager) openStream(ctx context.Context, a event.Assignment, partition string) (event.Stream, bool) {
	for {
		offset := int64(-1)
		cp, err := m.store.ReadPosition(ctx, partition)
		if err == nil {
			if cp != nil {
				offset = cp.Next()
			}
			var stream event.Stream
			stream, err = a.Open(ctx, partition, offset)
			if err == nil {
				m.logger.Info("partition opened", "partition", partition, "offset", offset)
				return stream, true
			}
		}

		if ctx.Err() != nil {
			return nil, false
		}
		m.reporter.Report(ctx, err, processor.ErrorContext{Operation: "open", Partition: partition})
		if !sleep(ctx, m.cfg.RetryBackoff) {
			return nil, false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
