// Command syncer starts the content search sync service.
//
// It serves the full-sync init endpoint used by the admin widget and the
// webhook the content platform calls after content changes, and keeps the
// configured search indexes in step with the published content.
//
// Usage:
//
//	go run ./cmd/syncer [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/delivery"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/fetcher"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/fullsync"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/handler"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/reconcile"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/resolver"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/router"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/status"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/redis"
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
	slog.Info("starting sync service",
		"port", cfg.Server.Port,
		"delivery_url", cfg.Kontent.DeliveryURL,
		"redis_enabled", cfg.Redis.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
	)
	if check := cfg.Secrets.Check(config.EnvAlgoliaAPIKey, config.EnvWebhookSecret); !check.OK() {
		slog.Warn("secrets missing, affected endpoints will answer 500", "missing", check.Missing)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker("content-search-sync")

	var statuses status.Store = status.NewMemoryStore()
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		statuses = status.NewRedisStore(redisClient, cfg.Redis.StatusTTL)
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
		slog.Info("sync status stored in redis", "addr", cfg.Redis.Addr)
	}

	var publisher audit.Publisher = audit.NewLogPublisher()
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SyncEvents)
		defer producer.Close()
		publisher = audit.NewKafkaPublisher(producer)
		checker.Register("kafka", health.PingCheck(producer.Ping, false))
		slog.Info("sync events published to kafka", "topic", cfg.Kafka.Topics.SyncEvents)
	}

	deliveryClient := delivery.New(cfg.Kontent, cfg.Secrets.KontentDeliveryAPIKey, m)
	graphs := fetcher.New(deliveryClient, cfg.Kontent.Depth, m)
	opener := searchindex.NewAlgoliaOpener(cfg.Algolia)

	pipeline := fullsync.New(graphs, opener, statuses, publisher, m, cfg.Server.RequestTimeout)
	batcher := reconcile.New(resolver.New(graphs, m), cfg.Webhook.MaxConcurrency, m)

	limiter := ratelimit.New(cfg.RateLimit.InitPerWindow, cfg.RateLimit.Window)
	go limiter.RunCleanup(ctx, 5*time.Minute)

	h := handler.New(handler.Config{
		Secrets:      cfg.Secrets,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		LogSpans:     cfg.Tracing.Enabled,
	}, pipeline, batcher, opener, publisher, limiter)

	chain := router.New(h, checker, m, router.Options{
		AllowOrigins:   cfg.Server.AllowOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("sync service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("sync service stopped")
}
