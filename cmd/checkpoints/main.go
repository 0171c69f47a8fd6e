package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"repairhub/internal/application/factories/infrastructure"
	"repairhub/internal/config"
	"repairhub/internal/connection"
)

func main() {
	reset := flag.String("reset", "", "delete the checkpoint of this partition so it restarts at the start offset")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load config: %v\n", err)
		os.Exit(1)
	}

	es, err := connection.ResolveEventSource(cfg.EventSource)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Event source is not configured: %v\n", err)
		os.Exit(1)
	}
	cs, err := connection.ResolveCheckpointStore(cfg.Checkpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Checkpoint store is not configured: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	backend, err := infraFactory.Checkpoints(ctx, cs, es.ConsumerGroup, es.Topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open checkpoint store: %v\n", err)
		os.Exit(1)
	}

	if *reset != "" {
		if err := backend.Lister.Delete(ctx, *reset); err != nil {
			fmt.Printf("Reset failed: %v\n", err)
		} else {
			fmt.Printf("Reset partition %s\n", *reset)
		}
	}

	cps, err := backend.Lister.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to list checkpoints: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("--- Checkpoints (%s / %s / %s) ---\n", cs.Container, es.ConsumerGroup, es.Topic)
	for _, cp := range cps {
		fmt.Printf("Partition: %s | Offset: %d | Updated: %s\n", cp.Partition, cp.Offset, cp.UpdatedAt.Format(time.RFC3339))
	}
}
