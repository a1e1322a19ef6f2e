// Command analytics aggregates the query events searchers publish to Kafka.
//
// It folds events into running totals (searches per mode, cache hit rate,
// zero-result queries, latency percentiles, top queries), serves them at
// GET /api/v1/analytics, and, when Postgres is reachable, snapshots them
// periodically.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	snapshotEvery := flag.Duration("snapshot_interval", time.Minute, "how often totals are written to Postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service",
		"port", cfg.Server.Port,
		"topic", cfg.Kafka.Topics.QueryEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
	go func() {
		if err := agg.Run(ctx, consumer); err != nil {
			slog.Error("aggregator stopped", "error", err)
			stop()
		}
	}()

	checker := health.NewChecker()
	var dbPinger health.Pinger
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer db.Close()
		dbPinger = db
		store, err := aggregator.NewStore(ctx, db)
		if err != nil {
			slog.Warn("snapshot store unavailable", "error", err)
		} else {
			if last, err := store.LatestSnapshot(ctx); err != nil {
				slog.Warn("reading last snapshot failed", "error", err)
			} else if last != nil {
				slog.Info("previous snapshot found",
					"total_searches", last.TotalSearches,
					"zero_results", last.ZeroResultCount,
				)
			}
			store.StartPeriodicSave(ctx, agg, *snapshotEvery)
		}
	}
	checker.Register("postgres", health.Optional(dbPinger))

	analyticsHandler := analytics.NewHandler(agg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
