package redis

import (
	"context"
	"fmt"
	"time"

	"repairhub/internal/domain/checkpoint"

	"github.com/redis/go-redis/v9"
)

var (
	renewIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
	releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
)

// Leaser grants partition leases with SET NX PX.
type Leaser struct {
	client redis.UniversalClient
	prefix string
}

func NewLeaser(client redis.UniversalClient, container, consumerGroup, topic string) *Leaser {
	if container == "" {
		container = checkpoint.DefaultContainer
	}
	return &Leaser{
		client: client,
		prefix: fmt.Sprintf("%s:%s:%s:lease:", container, consumerGroup, topic),
	}
}

func (l *Leaser) Acquire(ctx context.Context, partition, owner string, ttl time.Duration) (bool, error) {
	key := l.prefix + partition
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}

	// Already ours, e.g. after a rebalance handed the partition straight back.
	renewed, err := renewIfOwner.Run(ctx, l.client, []string{key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return renewed == 1, nil
}

func (l *Leaser) Renew(ctx context.Context, partition, owner string, ttl time.Duration) error {
	renewed, err := renewIfOwner.Run(ctx, l.client, []string{l.prefix + partition}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if renewed != 1 {
		return checkpoint.ErrLeaseLost
	}
	return nil
}

func (l *Leaser) Release(ctx context.Context, partition, owner string) error {
	if err := releaseIfOwner.Run(ctx, l.client, []string{l.prefix + partition}, owner).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
