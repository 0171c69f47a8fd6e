package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"repairhub/internal/domain/checkpoint"
	"repairhub/internal/domain/event"
	"repairhub/internal/domain/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// DefaultThreshold is the number of handled events between checkpoints.
	DefaultThreshold = 2

	deadLetterTimeout = 10 * time.Second
)

var (
	eventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_events_handled_total",
		Help: "The total number of events handled, by outcome",
	}, []string{"outcome"})
	checkpointsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_checkpoints_written_total",
		Help: "The total number of checkpoint writes",
	})
	handleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_handle_duration_seconds",
		Help:    "Time taken to handle one event",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// Outcome is the result of handling one event.
type Outcome int

const (
	// Skipped means the event was not admitted because its context was cancelled.
	Skipped Outcome = iota
	// Processed means the report was stored and the part ordered.
	Processed
	// Checkpointed is Processed plus a checkpoint write for the event's offset.
	Checkpointed
	// Failed means the event hit an error and was dropped.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Processed:
		return "processed"
	case Checkpointed:
		return "checkpointed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Repository stores repair reports. AddIfNew reports whether the report was
// inserted and must not fail for an id that already exists.
type Repository interface {
	AddIfNew(ctx context.Context, r *report.RepairReport) (bool, error)
}

// PartOrderer orders a replacement part downstream.
type PartOrderer interface {
	OrderPart(ctx context.Context, partID int, reportID string) error
}

// DeadLetterSink receives events that failed to process.
type DeadLetterSink interface {
	Publish(ctx context.Context, ev event.Event, cause error) error
}

type Config struct {
	Threshold     int
	HandleTimeout time.Duration
}

// Processor handles the events of every partition owned by this worker. A
// single partition must be fed sequentially; different partitions may call
// Handle concurrently.
type Processor struct {
	repo       Repository
	orderer    PartOrderer
	store      checkpoint.Store
	tracker    *Tracker
	reporter   *Reporter
	deadLetter DeadLetterSink
	logger     *slog.Logger

	threshold     int
	handleTimeout time.Duration
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithReporter(reporter *Reporter) Option {
	return func(p *Processor) {
		p.reporter = reporter
	}
}

func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(p *Processor) {
		p.deadLetter = sink
	}
}

func New(cfg Config, repo Repository, orderer PartOrderer, store checkpoint.Store, opts ...Option) *Processor {
	p := &Processor{
		repo:          repo,
		orderer:       orderer,
		store:         store,
		tracker:       NewTracker(),
		logger:        slog.Default(),
		threshold:     cfg.Threshold,
		handleTimeout: cfg.HandleTimeout,
	}
	if p.threshold <= 0 {
		p.threshold = DefaultThreshold
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.reporter == nil {
		p.reporter = NewReporter(p.logger)
	}
	return p
}

func (p *Processor) Tracker() *Tracker {
	return p.tracker
}

// ResetPartition forgets uncheckpointed progress, used when a partition is
// (re)acquired and its events will be redelivered from the last checkpoint.
func (p *Processor) ResetPartition(partition string) {
	p.tracker.Reset(partition)
}

// Handle processes one event. Errors never escape: they are reported and the
// event counts as done so the partition keeps moving. Once admitted, the
// work runs to completion even if ctx is cancelled meanwhile.
func (p *Processor) Handle(ctx context.Context, ev event.Event) Outcome {
	if ctx.Err() != nil {
		eventsHandled.WithLabelValues(Skipped.String()).Inc()
		return Skipped
	}

	started := time.Now()
	work := context.WithoutCancel(ctx)
	if p.handleTimeout > 0 {
		var cancel context.CancelFunc
		work, cancel = context.WithTimeout(work, p.handleTimeout)
		defer cancel()
	}

	outcome, err := p.process(work, ev)
	if err != nil {
		p.reporter.Report(work, err, ErrorContext{
			Operation: "handle",
			Partition: ev.Partition,
			MessageID: ev.MessageID,
			Offset:    ev.Offset,
		})
		p.sendToDeadLetter(ctx, ev, err)
		outcome = Failed
	}

	handleDuration.Observe(time.Since(started).Seconds())
	eventsHandled.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (p *Processor) process(ctx context.Context, ev event.Event) (Outcome, error) {
	p.logger.Debug("received message", "message_id", ev.MessageID, "partition", ev.Partition, "offset", ev.Offset)

	r, err := report.Parse(ev.Payload)
	if err != nil {
		return Failed, fmt.Errorf("parse event %s: %w", ev.MessageID, err)
	}

	isNew, err := p.repo.AddIfNew(ctx, r)
	if err != nil {
		return Failed, fmt.Errorf("add repair report %s: %w", r.ID, err)
	}
	if !isNew {
		p.logger.Debug("repair report already stored", "report_id", r.ID)
	}

	partID := r.PartID()
	if err := p.orderer.OrderPart(ctx, partID, r.ID); err != nil {
		return Failed, fmt.Errorf("order repair part %d for report %s: %w", partID, r.ID, err)
	}

	p.logger.Info("repair report processed", "report_id", r.ID, "part_id", partID, "partition", ev.Partition, "offset", ev.Offset)

	count := p.tracker.Increment(ev.Partition)
	if count < p.threshold {
		return Processed, nil
	}

	cp := checkpoint.Checkpoint{
		Partition: ev.Partition,
		Offset:    ev.Offset,
		UpdatedAt: time.Now().UTC(),
	}
	if err := p.store.WritePosition(ctx, cp); err != nil {
		// The counter stays above the threshold so the next event retries
		// with a newer offset.
		p.reporter.Report(ctx, fmt.Errorf("write checkpoint: %w", err), ErrorContext{
			Operation: "checkpoint",
			Partition: ev.Partition,
			MessageID: ev.MessageID,
			Offset:    ev.Offset,
		})
		return Processed, nil
	}
	p.tracker.Reset(ev.Partition)
	checkpointsWritten.Inc()

	p.logger.Debug("checkpoint written", "partition", ev.Partition, "offset", ev.Offset)
	return Checkpointed, nil
}

// sendToDeadLetter gets its own deadline: the handle context may be the
// one that just expired.
func (p *Processor) sendToDeadLetter(ctx context.Context, ev event.Event, cause error) {
	if p.deadLetter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterTimeout)
	defer cancel()
	if err := p.deadLetter.Publish(ctx, ev, cause); err != nil {
		p.reporter.Report(ctx, fmt.Errorf("publish dead letter: %w", err), ErrorContext{
			Operation: "dead_letter",
			Partition: ev.Partition,
			MessageID: ev.MessageID,
			Offset:    ev.Offset,
		})
	}
}
