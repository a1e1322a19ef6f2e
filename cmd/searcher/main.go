// Command searcher serves ranked retrieval over the three-field index.
//
// The HTTP listener starts immediately; the index snapshot loads in the
// background and query endpoints answer 503 until it is published.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/signals"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/titles"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/redis"
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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"data_dir", cfg.Index.DataDir,
		"corpus_size", cfg.Index.CorpusSize,
		"max_candidates", cfg.Search.MaxCandidates,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	titleStore, err := titles.Open(cfg.Index.TitlesPath)
	if err != nil {
		slog.Error("failed to open title store", "path", cfg.Index.TitlesPath, "error", err)
		os.Exit(1)
	}
	defer titleStore.Close()
	slog.Info("title store opened", "path", cfg.Index.TitlesPath, "titles", titleStore.Count())

	var queryCache *cache.QueryCache
	var redisPinger health.Pinger
	if cfg.Search.CacheEnabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			redisPinger = redisClient
			namespace := fmt.Sprintf("w%g-%g-%g-c%d",
				cfg.Search.Weights.Body, cfg.Search.Weights.Title, cfg.Search.Weights.Anchor,
				cfg.Search.MaxCandidates,
			)
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, namespace, m)
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
				"namespace", namespace,
			)
		}
	}

	aggregator := analytics.NewAggregator()
	trackers := analytics.Trackers{aggregator}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000, 100, time.Second)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("query events published to kafka", "topic", cfg.Kafka.Topics.QueryEvents)
	}

	gate := snapshot.NewGate()
	loadFailed := make(chan error, 1)
	go func() {
		start := time.Now()
		snap, err := snapshot.NewLoader(cfg.Index.DataDir, cfg.Index.LoadTimeout).Load(ctx)
		if err != nil {
			loadFailed <- err
			return
		}
		if err := gate.Publish(snap); err != nil {
			snap.Close()
			loadFailed <- err
			return
		}
		terms := make(map[string]int)
		for field, n := range snap.Terms() {
			terms[string(field)] = n
			m.IndexTerms.WithLabelValues(string(field)).Set(float64(n))
		}
		m.IndexReady.Set(1)
		trackers.Track(analytics.IndexLoadEvent{
			Type:      analytics.EventIndexLoad,
			Terms:     terms,
			LoadMs:    time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
		})
		slog.Info("index ready", "terms", terms, "load_time", time.Since(start).String())
	}()
	defer func() {
		if snap, err := gate.Get(); err == nil {
			snap.Close()
		}
	}()

	checker := health.NewChecker()
	checker.Register("index_snapshot", health.Gate(gate.Ready, func() string {
		snap, err := gate.Get()
		if err != nil {
			return ""
		}
		return fmt.Sprintf("loaded at %s", snap.LoadedAt().UTC().Format(time.RFC3339))
	}))
	checker.Register("redis", health.Optional(redisPinger))

	exec := executor.New(gate, executor.Config{
		Weights:            ranker.Weights(cfg.Search.Weights),
		CorpusSize:         int(cfg.Index.CorpusSize),
		MaxCandidates:      cfg.Search.MaxCandidates,
		MaxPostingsPerTerm: cfg.Search.MaxPostingsPerTerm,
		ResultCap:          cfg.Search.ResultCap,
		SoftBudget:         cfg.Search.SoftBudget,
		TraceSampleRate:    traceSampleRate(cfg.Tracing),
	}, m)
	h := handler.New(exec, queryCache, titleStore, signals.Neutral{}, trackers)
	analyticsHandler := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m)}
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)))
	}
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimitPerMinute, time.Minute)
		limiter.StartPruning(ctx, 5*time.Minute)
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var loadErr atomic.Bool
	go func() {
		select {
		case err := <-loadFailed:
			slog.Error("index load failed, shutting down", "error", err)
			loadErr.Store(true)
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
	if loadErr.Load() {
		os.Exit(1)
	}
}

func traceSampleRate(cfg config.TracingConfig) float64 {
	if !cfg.Enabled {
		return 0
	}
	return cfg.SampleRate
}
