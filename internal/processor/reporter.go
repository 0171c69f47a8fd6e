package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var errorsReported = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "consumer_errors_total",
	Help: "The total number of errors reported by the consumer pipeline",
}, []string{"operation"})

// ErrorContext says where in the pipeline an error was raised.
type ErrorContext struct {
	Operation string
	Partition string
	MessageID string
	Offset    int64
}

// Reporter turns pipeline errors into log records and metrics. It never
// fails and never changes the flow of a partition.
type Reporter struct {
	logger *slog.Logger
}

func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{logger: logger}
}

func (r *Reporter) Report(ctx context.Context, err error, ec ErrorContext) {
	if err == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("error reporter panicked", "panic", fmt.Sprint(p))
		}
	}()

	op := ec.Operation
	if op == "" {
		op = "unknown"
	}
	errorsReported.WithLabelValues(op).Inc()

	attrs := []any{"operation", op, "error", err}
	if ec.Partition != "" {
		attrs = append(attrs, "partition", ec.Partition, "offset", ec.Offset)
	}
	if ec.MessageID != "" {
		attrs = append(attrs, "message_id", ec.MessageID)
	}
	r.logger.ErrorContext(ctx, "exception while processing", attrs...)
}
