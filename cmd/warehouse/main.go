package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairhub/internal/api"
	"repairhub/internal/api/middleware"
	"repairhub/internal/application/factories/infrastructure"
	"repairhub/internal/config"
	"repairhub/internal/infrastructure/postgres"
	"repairhub/internal/usecase"
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

	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	// Repositories
	orderRepo := postgres.NewOrderRepository(pgPool)
	inboxRepo := postgres.NewInboxRepository(pgPool)
	txManager := postgres.NewTxManager(pgPool)

	// UseCases
	orderPartUC := usecase.NewOrderPart(txManager, orderRepo, inboxRepo)
	getOrderUC := usecase.NewGetOrder(redisClient, orderRepo)
	listOrdersUC := usecase.NewListOrders(orderRepo)

	handlers := api.NewHandlers(orderPartUC, getOrderUC, listOrdersUC)
	apiHandler := api.NewRouter(handlers, middleware.NewRedisKeyStore(redisClient), cfg.Warehouse.MaxInFlight)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: apiHandler,
	}

	go func() {
		logger.Info("warehouse starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down warehouse...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("warehouse exiting")
}
