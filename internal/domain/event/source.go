package event

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by Source.Join after Close.
var ErrSourceClosed = errors.New("event source closed")

// Source is a membership in a consumer group over a partitioned log.
type Source interface {
	// Join blocks until this member receives a partition assignment.
	Join(ctx context.Context) (Assignment, error)
	Close() error
}

// Assignment is the set of partitions owned by this member until the group
// rebalances.
type Assignment interface {
	Partitions() []string
	// Open starts reading partition at offset. A negative offset means the
	// source's configured start policy.
	Open(ctx context.Context, partition string, offset int64) (Stream, error)
	// Revoked is closed when the group needs this member to give its
	// partitions back.
	Revoked() <-chan struct{}
}

// Stream yields the events of one partition in log order.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}
