package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrLeaseLost is returned by Renew when another owner holds the lease.
var ErrLeaseLost = errors.New("partition lease lost")

// Leaser grants partition ownership so two workers never read the same
// partition concurrently.
type Leaser interface {
	Acquire(ctx context.Context, partition, owner string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, partition, owner string, ttl time.Duration) error
	Release(ctx context.Context, partition, owner string) error
}
