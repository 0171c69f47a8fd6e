package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"repairhub/internal/config"
	"repairhub/internal/connection"
	"repairhub/internal/domain/checkpoint"
	"repairhub/internal/infrastructure/postgres"
	"repairhub/internal/infrastructure/redis"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

// CheckpointBackend bundles the views of one checkpoint store.
type CheckpointBackend struct {
	Store  checkpoint.Store
	Leaser checkpoint.Leaser
	Lister checkpoint.Lister
}

type Factory struct {
	cfg           *config.Config
	pgPool        *pgxpool.Pool
	redisCli      *go_redis.Client
	checkpointCli *go_redis.Client
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg: cfg,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		slog.Warn("failed to connect to postgres, retrying", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr: f.cfg.Redis.Addr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

// Checkpoints opens the checkpoint store for one consumer group and topic on
// the configured backend.
func (f *Factory) Checkpoints(ctx context.Context, cs *connection.CheckpointStore, consumerGroup, topic string) (*CheckpointBackend, error) {
	switch cs.Backend {
	case "postgres":
		pool, err := f.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		store, err := postgres.NewCheckpointStore(pool, cs.Container, consumerGroup, topic)
		if err != nil {
			return nil, err
		}
		return &CheckpointBackend{Store: store, Leaser: store, Lister: store}, nil
	default:
		if f.checkpointCli == nil {
			client, err := redis.NewClient(ctx, redis.Config{
				Addr:     cs.Addr,
				Password: cs.Password,
				CertFile: cs.CertFile,
				KeyFile:  cs.KeyFile,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to init checkpoint store: %w", err)
			}
			f.checkpointCli = client
		}
		store := redis.NewCheckpointStore(f.checkpointCli, cs.Container, consumerGroup, topic)
		return &CheckpointBackend{
			Store:  store,
			Leaser: redis.NewLeaser(f.checkpointCli, cs.Container, consumerGroup, topic),
			Lister: store,
		}, nil
	}
}

func (f *Factory) Close() {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
	if f.checkpointCli != nil {
		f.checkpointCli.Close()
	}
}
