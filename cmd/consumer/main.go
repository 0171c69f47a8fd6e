package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairhub/internal/api"
	"repairhub/internal/application/factories/infrastructure"
	"repairhub/internal/config"
	"repairhub/internal/connection"
	"repairhub/internal/consumer"
	"repairhub/internal/infrastructure/kafka"
	"repairhub/internal/infrastructure/postgres"
	"repairhub/internal/infrastructure/warehouse"
	"repairhub/internal/processor"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	es, err := connection.ResolveEventSource(cfg.EventSource)
	if err != nil {
		logger.Error("event source is not configured", "error", err)
		os.Exit(1)
	}
	cs, err := connection.ResolveCheckpointStore(cfg.Checkpoint)
	if err != nil {
		logger.Error("checkpoint store is not configured", "error", err)
		os.Exit(1)
	}
	if cs.Anonymous() {
		logger.Warn("checkpoint store has no credentials configured, connecting anonymously", "backend", cs.Backend, "addr", cs.Addr)
	}
	logger.Info("connections resolved", "event_source", es.Kind.String(), "topic", es.Topic, "consumer_group", es.ConsumerGroup, "checkpoint_backend", cs.Backend)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := postgres.EnsureSchema(ctx, pgPool); err != nil {
		logger.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	checkpoints, err := infraFactory.Checkpoints(ctx, cs, es.ConsumerGroup, es.Topic)
	if err != nil {
		logger.Error("failed to open checkpoint store", "error", err)
		os.Exit(1)
	}

	opts := []processor.Option{processor.WithLogger(logger)}
	if cfg.Consumer.DeadLetterTopic != "" {
		dlq := kafka.NewProducer(es, cfg.Consumer.DeadLetterTopic)
		defer dlq.Close()
		opts = append(opts, processor.WithDeadLetterSink(kafka.NewDeadLetterSink(dlq)))
	}

	warehouseClient, err := warehouse.NewClient(warehouse.Config{
		URL:     cfg.Warehouse.URL,
		Timeout: cfg.Warehouse.Timeout,
		Policy:  policyConfig(cfg.Warehouse),
	})
	if err != nil {
		logger.Error("invalid warehouse configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("warehouse client ready", "url", cfg.Warehouse.URL, "policy", warehouseClient.Policy())
	go reloadPolicyOnHangup(ctx, logger, warehouseClient)

	proc := processor.New(
		processor.Config{
			Threshold:     cfg.Consumer.CheckpointThreshold,
			HandleTimeout: cfg.Consumer.HandleTimeout,
		},
		postgres.NewReportRepository(pgPool),
		warehouseClient,
		checkpoints.Store,
		opts...,
	)

	source, err := kafka.NewGroupSource(es, cfg.EventSource.StartOffset)
	if err != nil {
		logger.Error("failed to create event source", "error", err)
		os.Exit(1)
	}

	manager := consumer.NewManager(consumer.Config{
		Owner:    ownerID(),
		LeaseTTL: cfg.Consumer.LeaseTTL,
	}, source, checkpoints.Store, checkpoints.Leaser, proc, logger)

	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start event consumer", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTP.MetricsPort,
		Handler: api.NewOpsRouter(func() (string, bool) {
			state := manager.State()
			return state.String(), state == consumer.Running
		}),
	}
	go func() {
		logger.Info("consumer ops server listening", "port", cfg.HTTP.MetricsPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down consumer...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Consumer.ShutdownTimeout)
	defer stopCancel()
	if err := manager.Stop(stopCtx); err != nil {
		logger.Error("event consumer did not stop cleanly", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server forced to shutdown", "error", err)
	}

	logger.Info("consumer exiting")
}

func ownerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "consumer"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString())
}

func policyConfig(w config.Warehouse) warehouse.PolicyConfig {
	return warehouse.PolicyConfig{
		Name:                 w.Policy,
		RetryMax:             w.RetryMax,
		RetryInitialInterval: w.RetryInitialInterval,
		BreakerFailures:      w.BreakerFailures,
		BreakerOpenTimeout:   w.BreakerOpenTimeout,
	}
}

// reloadPolicyOnHangup re-reads the configuration on SIGHUP and applies the
// warehouse policy without restarting the consumer.
func reloadPolicyOnHangup(ctx context.Context, logger *slog.Logger, client *warehouse.Client) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.New()
			if err != nil {
				logger.Error("failed to reload config", "error", err)
				continue
			}
			if err := client.SetPolicy(policyConfig(cfg.Warehouse)); err != nil {
				logger.Error("failed to apply warehouse policy", "error", err)
				continue
			}
			logger.Info("warehouse policy reloaded", "policy", client.Policy())
		}
	}
}
