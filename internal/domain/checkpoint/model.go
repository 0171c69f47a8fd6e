package checkpoint

import (
	"context"
	"time"
)

// DefaultContainer is the container name used when none is configured.
const DefaultContainer = "checkpoint-store"

// Checkpoint is the last acknowledged offset of a partition.
type Checkpoint struct {
	Partition string    `json:"partition"`
	Offset    int64     `json:"offset"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Next is the offset to resume reading from.
func (c *Checkpoint) Next() int64 {
	return c.Offset + 1
}

// Store persists checkpoints per partition. Writes never move a partition
// backward.
type Store interface {
	CreateContainerIfAbsent(ctx context.Context) error
	// ReadPosition returns nil, nil when the partition has no checkpoint.
	ReadPosition(ctx context.Context, partition string) (*Checkpoint, error)
	WritePosition(ctx context.Context, cp Checkpoint) error
}

// Lister is implemented by stores that can enumerate their checkpoints.
type Lister interface {
	List(ctx context.Context) ([]Checkpoint, error)
	Delete(ctx context.Context, partition string) error
}
