package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/querylog"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docrank/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dataDir := flag.String("data-dir", "", "snapshot directory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Indexer.DataDir = *dataDir
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Indexer.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	store := snapshot.NewStore(cfg.Indexer.DataDir, cfg.Indexer.Retain)
	searcher := ranker.NewSearcher(store).WithMetrics(m)
	reloader := reload.New(store).WithMetrics(m)

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	switch {
	case errors.Is(err, pkgredis.ErrDisabled):
		slog.Info("no redis address configured, search caching disabled")
	case err != nil:
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	default:
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		searcher.WithCache(queryCache)
		reloader.WithInvalidator(queryCache)
		slog.Info("search cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	// Serve even without a snapshot; queries get 503 until one appears.
	if _, _, err := reloader.Reload(ctx, "startup"); err != nil && !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		slog.Error("initial snapshot load failed", "error", err)
	}

	if cfg.Search.WatchSnapshots {
		if err := os.MkdirAll(cfg.Indexer.DataDir, 0o755); err != nil {
			slog.Error("failed to create data dir", "error", err)
			os.Exit(1)
		}
		watcher := reload.NewWatcher(cfg.Indexer.DataDir, cfg.Search.ReloadDebounce, func() {
			_, _, _ = reloader.Reload(ctx, "watch")
		})
		if err := watcher.Start(ctx); err != nil {
			slog.Error("failed to watch snapshot dir", "error", err)
			os.Exit(1)
		}
		defer watcher.Stop()
		slog.Info("watching snapshot pointer", "dir", cfg.Indexer.DataDir)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, reload.HandleMessage(reloader, resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		}))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index.complete consumer error", "error", err)
			}
		}()
		slog.Info("consuming index.complete events",
			"topic", cfg.Kafka.Topics.IndexComplete,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	h := handler.New(searcher, store, cfg.Search.DefaultK, cfg.Search.MaxK).
		WithMetrics(m).
		WithQueryLog(querylog.New(cfg.Search.AnalyticsWindow, cfg.Search.AnalyticsMaxQueries, 10))
	if queryCache != nil {
		h.WithCache(queryCache)
	}

	checker := health.NewChecker()
	checker.Register("snapshot", h.SnapshotCheck)
	checker.Register("redis", health.Optional(func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}))

	rc := handler.RouterConfig{
		Timeout:     cfg.Server.WriteTimeout,
		CORSOrigins: cfg.Server.CORSOrigins,
	}
	if cfg.Server.RateLimit > 0 {
		rc.Limiter = ratelimit.New(cfg.Server.RateLimit, time.Minute)
		defer rc.Limiter.Close()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewRouter(h, checker, m, rc),
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
