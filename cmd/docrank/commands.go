package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/batch"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/proto"
)

// registerGlobalFlags registers the flags shared by every subcommand.
func registerGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "configs/development.yaml", "path to config file")
	flags.StringP("data-dir", "d", "", "snapshot directory (overrides config)")
	flags.String("log-level", "", "log level: debug, info, warn or error (overrides config)")
}

// loadConfig applies the global flags on top of the config file. Logs go to
// stderr so results on stdout stay machine-readable.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := flags.GetString("data-dir"); dir != "" {
		cfg.Indexer.DataDir = dir
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")
	return cfg, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// loadSearcher publishes the CURRENT snapshot of the data dir.
func loadSearcher(cfg *config.Config) (*ranker.Searcher, *snapshot.Snapshot, error) {
	store := snapshot.NewStore(cfg.Indexer.DataDir, cfg.Indexer.Retain)
	snap, err := store.Reload()
	if err != nil {
		return nil, nil, err
	}
	return ranker.NewSearcher(store), snap, nil
}

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a snapshot from a directory of HTML files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("html-dir"); dir != "" {
				cfg.Indexer.HTMLDir = dir
			}
			if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
				cfg.Indexer.Workers = n
			}
			opts, err := indexer.OptionsFromConfig(cfg.Indexer)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			store := snapshot.NewStore(cfg.Indexer.DataDir, cfg.Indexer.Retain)
			stats, err := indexer.NewBuilder(opts, store).Run(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot:      %s\n", stats.SnapshotID)
			fmt.Fprintf(out, "documents:     %d\n", stats.Documents)
			fmt.Fprintf(out, "unique terms:  %d\n", stats.UniqueTerms)
			fmt.Fprintf(out, "vocabulary:    %d\n", stats.VocabularySize)
			fmt.Fprintf(out, "avg length:    %.2f\n", stats.AvgDocLength)
			fmt.Fprintf(out, "warnings:      %d\n", stats.Warnings)
			fmt.Fprintf(out, "took:          %s\n", stats.Duration.Round(time.Millisecond))

			samplePath, _ := cmd.Flags().GetString("sample")
			if samplePath == "" {
				return nil
			}
			snap, err := store.Current()
			if err != nil {
				return err
			}
			f, err := os.Create(samplePath)
			if err != nil {
				return fmt.Errorf("creating sample file: %w", err)
			}
			defer f.Close()
			n, _ := cmd.Flags().GetInt("sample-terms")
			if err := snap.Index.WriteSample(f, n); err != nil {
				return fmt.Errorf("writing sample: %w", err)
			}
			fmt.Fprintf(out, "sample:        %s\n", samplePath)
			return nil
		},
	}
	cmd.Flags().String("html-dir", "", "directory of crawled .html files (overrides config)")
	cmd.Flags().IntP("workers", "w", 0, "parallel extraction workers (overrides config)")
	cmd.Flags().String("sample", "", "write a JSON sample of the inverted index to this file")
	cmd.Flags().Int("sample-terms", 100, "number of terms in the sample")
	return cmd
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [text...]",
		Short: "Rank the current snapshot against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			k, _ := cmd.Flags().GetInt("k")
			searcher, _, err := loadSearcher(cfg)
			if err != nil {
				return err
			}
			results, err := searcher.Search(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tSCORE\tDOC\tTITLE\tURL")
			for _, r := range results {
				fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\t%s\n", r.Rank, r.Score, r.DocID, r.Title, r.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntP("k", "k", 10, "number of results")
	cmd.Flags().Bool("json", false, "print results as JSON")
	return cmd
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Rank a CSV of queries and write the result rows to a sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if v, _ := flags.GetString("queries"); v != "" {
				cfg.Batch.QueriesFile = v
			}
			if v, _ := flags.GetString("sink"); v != "" {
				cfg.Batch.Sink = v
			}
			if v, _ := flags.GetString("output"); v != "" {
				cfg.Batch.Output = v
			}
			if v, _ := flags.GetInt("k"); v > 0 {
				cfg.Batch.K = v
			}

			f, err := os.Open(cfg.Batch.QueriesFile)
			if err != nil {
				return fmt.Errorf("opening queries: %w", err)
			}
			queries, err := batch.ReadQueries(f)
			f.Close()
			if err != nil {
				return err
			}
			searcher, _, err := loadSearcher(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			rows, err := batch.Run(ctx, searcher, queries, cfg.Batch.K)
			if err != nil {
				return err
			}

			sink, err := batch.Open(cfg.Batch, cfg.Postgres)
			if err != nil {
				return err
			}
			if err := batch.Write(ctx, sink, rows, nil); err != nil {
				sink.Close()
				return err
			}
			if err := sink.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d queries, %d rows -> %s (%s)\n", len(queries), len(rows), cfg.Batch.Output, sink.Name())
			return nil
		},
	}
	cmd.Flags().StringP("queries", "q", "", "query_id,query_text CSV (overrides config)")
	cmd.Flags().StringP("sink", "s", "", "csv, xlsx, sqlite or postgres (overrides config)")
	cmd.Flags().StringP("output", "o", "", "output file for csv, xlsx and sqlite sinks (overrides config)")
	cmd.Flags().IntP("k", "k", 0, "results per query (overrides config)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print statistics of the current snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			_, snap, err := loadSearcher(cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(proto.StatsResponse{
				SnapshotID:   snap.ID,
				CreatedAt:    snap.CreatedAt.UTC().Format(time.RFC3339),
				Documents:    len(snap.Docs),
				UniqueTerms:  snap.Index.TermCount(),
				Features:     snap.Model.Size(),
				AvgDocLength: snap.AvgDocLength(),
			})
		},
	}
}

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain [text...]",
		Short: "Show how the current snapshot sees a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			_, snap, err := loadSearcher(cfg)
			if err != nil {
				return err
			}
			exp, err := ranker.Explain(snap, strings.Join(args, " "))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(exp)
		},
	}
}
