// Command auditor consumes sync events from Kafka and stores them in the
// sync_events table, giving an audit trail of every index write.
//
// Usage:
//
//	go run ./cmd/auditor [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting auditor",
		"topic", cfg.Kafka.Topics.SyncEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := audit.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SyncEvents, audit.HandleMessage(store))
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("auditor stopped")
}
