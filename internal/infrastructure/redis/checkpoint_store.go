package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"repairhub/internal/domain/checkpoint"

	"github.com/redis/go-redis/v9"
)

const (
	createdField  = "__created_at"
	updatedSuffix = ":updated_at"
)

// writeIfNewer only moves a partition forward.
var writeIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], ARGV[1] .. ':updated_at', ARGV[3])
return 1
`)

// CheckpointStore keeps one hash per container, consumer group and topic;
// each partition is a field holding its offset.
type CheckpointStore struct {
	client redis.UniversalClient
	key    string
}

func NewCheckpointStore(client redis.UniversalClient, container, consumerGroup, topic string) *CheckpointStore {
	if container == "" {
		container = checkpoint.DefaultContainer
	}
	return &CheckpointStore{
		client: client,
		key:    fmt.Sprintf("%s:%s:%s", container, consumerGroup, topic),
	}
}

// CreateContainerIfAbsent is safe to race across cold-starting instances.
func (s *CheckpointStore) CreateContainerIfAbsent(ctx context.Context) error {
	if err := s.client.HSetNX(ctx, s.key, createdField, time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("create checkpoint container: %w", err)
	}
	return nil
}

func (s *CheckpointStore) ReadPosition(ctx context.Context, partition string) (*checkpoint.Checkpoint, error) {
	vals, err := s.client.HMGet(ctx, s.key, partition, partition+updatedSuffix).Result()
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(vals) == 0 || vals[0] == nil {
		return nil, nil
	}
	return parseCheckpoint(partition, vals[0], vals[1])
}

func (s *CheckpointStore) WritePosition(ctx context.Context, cp checkpoint.Checkpoint) error {
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	err := writeIfNewer.Run(ctx, s.client, []string{s.key},
		cp.Partition, cp.Offset, updated.Format(time.RFC3339Nano)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) List(ctx context.Context) ([]checkpoint.Checkpoint, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var cps []checkpoint.Checkpoint
	for field, value := range all {
		if strings.HasPrefix(field, "__") || strings.HasSuffix(field, updatedSuffix) {
			continue
		}
		cp, err := parseCheckpoint(field, value, all[field+updatedSuffix])
		if err != nil {
			return nil, err
		}
		cps = append(cps, *cp)
	}
	checkpoint.SortByPartition(cps)
	return cps, nil
}

func (s *CheckpointStore) Delete(ctx context.Context, partition string) error {
	if err := s.client.HDel(ctx, s.key, partition, partition+updatedSuffix).Err(); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func parseCheckpoint(partition string, offset, updated any) (*checkpoint.Checkpoint, error) {
	raw, ok := offset.(string)
	if !ok {
		return nil, fmt.Errorf("checkpoint for partition %s: unexpected type %T", partition, offset)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("checkpoint for partition %s: %w", partition, err)
	}

	cp := &checkpoint.Checkpoint{Partition: partition, Offset: n}
	if s, ok := updated.(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			cp.UpdatedAt = ts
		}
	}
	return cp, nil
}
