package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"repairhub/internal/domain/checkpoint"

	"github.com/jackc/pgx/v5"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CheckpointStore keeps checkpoints in a table named after the container.
// Rows are scoped by consumer group and topic.
type CheckpointStore struct {
	db            DB
	table         string
	consumerGroup string
	topic         string
}

// NewCheckpointStore maps the container name onto a table name
// ("checkpoint-store" becomes checkpoint_store).
func NewCheckpointStore(db DB, container, consumerGroup, topic string) (*CheckpointStore, error) {
	table := TableName(container)
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid checkpoint container name %q", container)
	}
	return &CheckpointStore{db: db, table: table, consumerGroup: consumerGroup, topic: topic}, nil
}

func TableName(container string) string {
	if container == "" {
		container = checkpoint.DefaultContainer
	}
	out := []byte(container)
	for i, c := range out {
		if c == '-' || c == '.' {
			out[i] = '_'
		}
	}
	return string(out)
}

func (s *CheckpointStore) CreateContainerIfAbsent(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			consumer_group TEXT NOT NULL,
			topic          TEXT NOT NULL,
			partition      TEXT NOT NULL,
			position       BIGINT NOT NULL,
			lease_owner    TEXT,
			lease_expires  TIMESTAMPTZ,
			updated_at     TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (consumer_group, topic, partition)
		)
	`, s.table)

	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create checkpoint container: %w", err)
	}
	return nil
}

func (s *CheckpointStore) ReadPosition(ctx context.Context, partition string) (*checkpoint.Checkpoint, error) {
	sql := fmt.Sprintf(`
		SELECT position, updated_at
		FROM %s
		WHERE consumer_group = $1 AND topic = $2 AND partition = $3 AND position >= 0
	`, s.table)

	cp := checkpoint.Checkpoint{Partition: partition}
	err := s.db.QueryRow(ctx, sql, s.consumerGroup, s.topic, partition).Scan(&cp.Offset, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *CheckpointStore) WritePosition(ctx context.Context, cp checkpoint.Checkpoint) error {
	sql := fmt.Sprintf(`
		INSERT INTO %[1]s (consumer_group, topic, partition, position, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (consumer_group, topic, partition) DO UPDATE
		SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at
		WHERE %[1]s.position < EXCLUDED.position
	`, s.table)

	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	if _, err := s.db.Exec(ctx, sql, s.consumerGroup, s.topic, cp.Partition, cp.Offset, updated); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) List(ctx context.Context) ([]checkpoint.Checkpoint, error) {
	sql := fmt.Sprintf(`
		SELECT partition, position, updated_at
		FROM %s
		WHERE consumer_group = $1 AND topic = $2 AND position >= 0
	`, s.table)

	rows, err := s.db.Query(ctx, sql, s.consumerGroup, s.topic)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []checkpoint.Checkpoint
	for rows.Next() {
		var cp checkpoint.Checkpoint
		if err := rows.Scan(&cp.Partition, &cp.Offset, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	checkpoint.SortByPartition(cps)
	return cps, nil
}

func (s *CheckpointStore) Delete(ctx context.Context, partition string) error {
	sql := fmt.Sprintf(`
		UPDATE %s SET position = -1, updated_at = NOW()
		WHERE consumer_group = $1 AND topic = $2 AND partition = $3
	`, s.table)

	if _, err := s.db.Exec(ctx, sql, s.consumerGroup, s.topic, partition); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Acquire takes the lease when it is free, expired, or already ours. A
// partition that was never checkpointed gets a row with position -1.
func (s *CheckpointStore) Acquire(ctx context.Context, partition, owner string, ttl time.Duration) (bool, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %[1]s (consumer_group, topic, partition, position, lease_owner, lease_expires, updated_at)
		VALUES ($1, $2, $3, -1, $4, NOW() + $5::interval, NOW())
		ON CONFLICT (consumer_group, topic, partition) DO UPDATE
		SET lease_owner = EXCLUDED.lease_owner, lease_expires = EXCLUDED.lease_expires
		WHERE %[1]s.lease_owner IS NULL
		   OR %[1]s.lease_owner = EXCLUDED.lease_owner
		   OR %[1]s.lease_expires < NOW()
	`, s.table)

	tag, err := s.db.Exec(ctx, sql, s.consumerGroup, s.topic, partition, owner, interval(ttl))
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CheckpointStore) Renew(ctx context.Context, partition, owner string, ttl time.Duration) error {
	sql := fmt.Sprintf(`
		UPDATE %s SET lease_expires = NOW() + $5::interval
		WHERE consumer_group = $1 AND topic = $2 AND partition = $3 AND lease_owner = $4
	`, s.table)

	tag, err := s.db.Exec(ctx, sql, s.consumerGroup, s.topic, partition, owner, interval(ttl))
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return checkpoint.ErrLeaseLost
	}
	return nil
}

func (s *CheckpointStore) Release(ctx context.Context, partition, owner string) error {
	sql := fmt.Sprintf(`
		UPDATE %s SET lease_owner = NULL, lease_expires = NULL
		WHERE consumer_group = $1 AND topic = $2 AND partition = $3 AND lease_owner = $4
	`, s.table)

	if _, err := s.db.Exec(ctx, sql, s.consumerGroup, s.topic, partition, owner); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func interval(d time.Duration) string {
	return fmt.Sprintf("%d milliseconds", d.Milliseconds())
}
