package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairhub/internal/config"
	"repairhub/internal/connection"
	"repairhub/internal/domain/report"
	"repairhub/internal/infrastructure/kafka"

	"github.com/google/uuid"
)

var reasons = []string{"wear", "impact", "corrosion", "electrical fault", "unknown"}

func main() {
	count := flag.Int("n", 10, "number of reports to publish, 0 for unlimited")
	interval := flag.Duration("interval", time.Second, "delay between reports")
	ship := flag.String("ship", "Endeavour", "ship name on generated reports")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	es, err := connection.ResolveEventSource(cfg.EventSource)
	if err != nil {
		logger.Error("event source is not configured", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	producer := kafka.NewProducer(es, es.Topic)
	defer producer.Close()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for sent := 0; *count == 0 || sent < *count; sent++ {
		r := report.RepairReport{
			ID:         uuid.NewString(),
			Title:      fmt.Sprintf("Repair request #%d", sent+1),
			Details:    "generated by reporter",
			Reason:     reasons[rand.Intn(len(reasons))],
			Ship:       *ship,
			PartNumber: report.MinPartID + rand.Intn(report.MaxPartID-report.MinPartID+1),
			CreatedAt:  time.Now().UTC(),
		}
		payload, err := json.Marshal(r)
		if err != nil {
			logger.Error("failed to marshal report", "error", err)
			os.Exit(1)
		}

		if err := producer.SendMessage(ctx, []byte(r.ID), payload, uuid.NewString()); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("failed to publish report", "report_id", r.ID, "error", err)
		} else {
			logger.Info("report published", "report_id", r.ID, "part_number", r.PartNumber, "topic", producer.GetTopic())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
