package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	htmlDir := flag.String("html-dir", "", "directory of crawled .html files (overrides config)")
	dataDir := flag.String("data-dir", "", "snapshot directory (overrides config)")
	samplePath := flag.String("sample", "", "write the first 100 index terms as JSON to this file")
	interval := flag.Duration("interval", 0, "rebuild on this interval instead of exiting after one build")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *htmlDir != "" {
		cfg.Indexer.HTMLDir = *htmlDir
	}
	if *dataDir != "" {
		cfg.Indexer.DataDir = *dataDir
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer",
		"html_dir", cfg.Indexer.HTMLDir,
		"data_dir", cfg.Indexer.DataDir,
		"workers", cfg.Indexer.Workers,
	)

	opts, err := indexer.OptionsFromConfig(cfg.Indexer)
	if err != nil {
		slog.Error("invalid indexer config", "error", err)
		os.Exit(1)
	}
	opts.Trace = cfg.Tracing.Enabled

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := snapshot.NewStore(cfg.Indexer.DataDir, cfg.Indexer.Retain)
	builder := indexer.NewBuilder(opts, store)

	if cfg.Metrics.Enabled {
		builder.WithMetrics(metrics.New())
		if *interval > 0 {
			shutdown := metrics.StartServer(cfg.Metrics.Port)
			defer shutdown(context.Background())
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		builder.WithPublisher(producer)
		slog.Info("announcing builds on kafka", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	if err := runOnce(ctx, builder, store, *samplePath); err != nil && *interval == 0 {
		os.Exit(1)
	}
	if *interval == 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	slog.Info("indexer waiting for next rebuild", "interval", *interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("indexer stopped")
			return
		case <-ticker.C:
			_ = runOnce(ctx, builder, store, *samplePath)
		}
	}
}

func runOnce(ctx context.Context, builder *indexer.Builder, store *snapshot.Store, samplePath string) error {
	stats, err := builder.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("build cancelled")
		} else {
			slog.Error("build failed, previous snapshot kept", "error", err)
		}
		return err
	}
	slog.Info("build complete",
		"snapshot_id", stats.SnapshotID,
		"documents", stats.Documents,
		"unique_terms", stats.UniqueTerms,
		"vocabulary", stats.VocabularySize,
		"avg_doc_length", stats.AvgDocLength,
		"warnings", stats.Warnings,
		"duration", stats.Duration,
	)
	if samplePath == "" {
		return nil
	}
	snap, err := store.Current()
	if err != nil {
		return err
	}
	f, err := os.Create(samplePath)
	if err != nil {
		slog.Error("failed to create sample file", "path", samplePath, "error", err)
		return err
	}
	defer f.Close()
	if err := snap.Index.WriteSample(f, 100); err != nil {
		slog.Error("failed to write index sample", "path", samplePath, "error", err)
		return err
	}
	slog.Info("index sample written", "path", samplePath)
	return nil
}
