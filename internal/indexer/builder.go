package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/extract"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/vsm"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/tracing"
)

// Options control a single build.
type Options struct {
	HTMLDir      string
	Workers      int
	DocTimeout   time.Duration
	MaxPositions int
	Vectorizer   vsm.Config
	Trace        bool
}

// OptionsFromConfig resolves the configured stop-word list and copies the
// indexer settings.
func OptionsFromConfig(cfg config.IndexerConfig) (Options, error) {
	v := cfg.Vectorizer
	stop, err := vsm.StopWords(v.StopWords, v.ExtraStopWords)
	if err != nil {
		return Options{}, err
	}
	return Options{
		HTMLDir:      cfg.HTMLDir,
		Workers:      cfg.Workers,
		DocTimeout:   cfg.DocTimeout,
		MaxPositions: cfg.MaxPositions,
		Vectorizer: vsm.Config{
			MaxFeatures: v.MaxFeatures,
			MinDF:       v.MinDF,
			MaxDF:       v.MaxDF,
			NgramMin:    v.NgramMin,
			NgramMax:    v.NgramMax,
			StopWords:   stop,
		},
	}, nil
}

// EventPublisher announces a published snapshot. *kafka.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Stats summarises a build.
type Stats struct {
	SnapshotID     string        `json:"snapshot_id"`
	Documents      int           `json:"documents"`
	UniqueTerms    int           `json:"unique_terms"`
	VocabularySize int           `json:"vocabulary_size"`
	AvgDocLength   float64       `json:"avg_doc_length"`
	Warnings       int           `json:"warnings"`
	Duration       time.Duration `json:"duration"`
}

// DocWarning ties an extraction warning to its document.
type DocWarning struct {
	DocID string
	Err   error
}

// Source is one corpus file. ID is the file name without extension.
type Source struct {
	ID   string
	Path string
}

// Builder turns a directory of crawled HTML into a published snapshot.
type Builder struct {
	opts      Options
	store     *snapshot.Store
	metrics   *metrics.Metrics
	publisher EventPublisher
	logger    *slog.Logger
}

func NewBuilder(opts Options, store *snapshot.Store) *Builder {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Builder{
		opts:   opts,
		store:  store,
		logger: slog.Default().With("component", "indexer"),
	}
}

func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.metrics = m
	return b
}

func (b *Builder) WithPublisher(p EventPublisher) *Builder {
	b.publisher = p
	return b
}

// ListSources returns the *.html files of dir sorted by name. The extension
// match is case-sensitive so a.html and a.HTML never collide on one ID.
func ListSources(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}
	sources := make([]Source, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".html" {
			continue
		}
		sources = append(sources, Source{
			ID:   strings.TrimSuffix(name, ".html"),
			Path: filepath.Join(dir, name),
		})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources, nil
}

// Run builds a snapshot from the configured directory, saves it, publishes
// it in memory and announces it. Any error leaves the previously published
// snapshot in place.
func (b *Builder) Run(ctx context.Context) (Stats, error) {
	snap, stats, _, err := b.Build(ctx)
	if err != nil {
		b.countBuild("error")
		return stats, err
	}

	start := time.Now()
	path, err := b.store.Save(snap)
	if err != nil {
		b.countBuild("error")
		return stats, fmt.Errorf("saving snapshot: %w", err)
	}
	b.observePhase("save", start)
	if err := b.store.Publish(snap); err != nil {
		b.countBuild("error")
		return stats, fmt.Errorf("publishing snapshot: %w", err)
	}
	b.countBuild("success")
	b.announce(ctx, snap, filepath.Base(path), stats)
	return stats, nil
}

// Build produces an in-memory snapshot without persisting it.
func (b *Builder) Build(ctx context.Context) (*snapshot.Snapshot, Stats, []DocWarning, error) {
	sources, err := ListSources(b.opts.HTMLDir)
	if err != nil {
		return nil, Stats{}, nil, err
	}
	return b.BuildSources(ctx, sources)
}

// BuildSources builds a snapshot from sources, which must be sorted by ID.
func (b *Builder) BuildSources(ctx context.Context, sources []Source) (*snapshot.Snapshot, Stats, []DocWarning, error) {
	started := time.Now()
	ctx, root := tracing.Start(ctx, "build")
	defer func() {
		root.End()
		if b.opts.Trace {
			root.Log(b.logger)
		}
	}()
	root.SetAttr("sources", len(sources))

	if len(sources) == 0 {
		return nil, Stats{}, nil, fmt.Errorf("%w: no .html files in %q", apperrors.ErrEmptyCorpus, b.opts.HTMLDir)
	}
	for i := 1; i < len(sources); i++ {
		if sources[i-1].ID >= sources[i].ID {
			return nil, Stats{}, nil, fmt.Errorf("%w: sources not strictly sorted at %q", apperrors.ErrInvalidInput, sources[i].ID)
		}
	}

	docs, warnings, err := b.extractAll(ctx, sources)
	if err != nil {
		return nil, Stats{}, warnings, err
	}

	ix, err := b.indexAll(ctx, docs)
	if err != nil {
		return nil, Stats{}, warnings, err
	}

	phaseStart := time.Now()
	_, fitSpan := tracing.StartChildSpan(ctx, "fit")
	corpus := make([][]string, len(docs))
	for i, d := range docs {
		corpus[i] = d.Tokens
	}
	model, err := vsm.Fit(corpus, b.opts.Vectorizer)
	if err != nil {
		fitSpan.End()
		return nil, Stats{}, warnings, fmt.Errorf("fitting vector model: %w", err)
	}
	matrix := model.TransformCorpus(corpus)
	fitSpan.SetAttr("features", model.Size())
	fitSpan.End()
	b.observePhase("fit", phaseStart)

	metas := make([]snapshot.DocMeta, len(docs))
	for i, d := range docs {
		metas[i] = snapshot.DocMeta{ID: d.ID, URL: d.URL, Title: d.Title, Length: d.TokenCount()}
	}
	snap := &snapshot.Snapshot{
		ID:        snapshot.NewID(),
		CreatedAt: time.Now().UTC(),
		Docs:      metas,
		Index:     ix,
		Model:     model,
		Matrix:    matrix,
	}
	stats := Stats{
		SnapshotID:     snap.ID,
		Documents:      len(docs),
		UniqueTerms:    ix.TermCount(),
		VocabularySize: model.Size(),
		AvgDocLength:   snap.AvgDocLength(),
		Warnings:       len(warnings),
		Duration:       time.Since(started),
	}
	if b.metrics != nil {
		b.metrics.DocsIndexedTotal.Add(float64(stats.Documents))
		b.metrics.VocabularySize.Set(float64(stats.VocabularySize))
		b.metrics.IndexedTerms.Set(float64(stats.UniqueTerms))
	}
	b.logger.Info("index built",
		"trace_id", tracing.TraceID(ctx),
		"snapshot_id", snap.ID,
		"documents", stats.Documents,
		"unique_terms", stats.UniqueTerms,
		"vocabulary_size", stats.VocabularySize,
		"avg_doc_length", stats.AvgDocLength,
		"warnings", stats.Warnings,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return snap, stats, warnings, nil
}

type extracted struct {
	page  extract.Page
	terms []string
}

// extractAll reads, extracts and tokenizes every source on a bounded worker
// pool. Results keep the input order.
func (b *Builder) extractAll(ctx context.Context, sources []Source) ([]index.Document, []DocWarning, error) {
	phaseStart := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "extract")
	defer span.End()

	docs := make([]index.Document, len(sources))
	perDoc := make([][]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			raw, err := os.ReadFile(src.Path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", src.Path, err)
			}
			doc, warns, err := b.extractOne(gctx, src.ID, string(raw))
			if err != nil {
				return err
			}
			docs[i] = doc
			perDoc[i] = warns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var warnings []DocWarning
	for i, warns := range perDoc {
		for _, w := range warns {
			warnings = append(warnings, DocWarning{DocID: sources[i].ID, Err: w})
			b.logger.Warn("extraction warning", "doc_id", sources[i].ID, "error", w)
			if b.metrics != nil {
				b.metrics.ExtractionWarnings.WithLabelValues(extract.WarningKind(w)).Inc()
			}
		}
	}
	span.SetAttr("documents", len(docs))
	span.SetAttr("warnings", len(warnings))
	b.observePhase("extract", phaseStart)
	return docs, warnings, nil
}

// extractOne runs extraction and tokenization under the per-document budget.
// A document that exceeds it is still indexed, with its marker URL, the
// untitled sentinel and no tokens.
func (b *Builder) extractOne(ctx context.Context, id, raw string) (index.Document, []error, error) {
	result := make(chan extracted, 1)
	err := resilience.WithTimeout(ctx, b.opts.DocTimeout, "extract "+id, func(ctx context.Context) error {
		page := extract.Extract(raw)
		if err := ctx.Err(); err != nil {
			return err
		}
		result <- extracted{page: page, terms: tokenizer.Terms(page.Text)}
		return nil
	})
	switch {
	case err == nil:
		r := <-result
		return index.Document{ID: id, URL: r.page.URL, Title: r.page.Title, Tokens: r.terms}, r.page.Warnings, nil
	case errors.Is(err, apperrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		warn := extract.NewWarning(extract.KindTimeout, "extraction exceeded %v", b.opts.DocTimeout)
		return index.Document{ID: id, URL: extract.MarkerURL(raw), Title: extract.UntitledPage}, []error{warn}, nil
	default:
		return index.Document{}, nil, fmt.Errorf("extracting %s: %w", id, err)
	}
}

// indexAll builds one partial index per contiguous chunk of docs in
// parallel and merges them in chunk order, so postings follow document
// order whatever the worker count.
func (b *Builder) indexAll(ctx context.Context, docs []index.Document) (*index.InvertedIndex, error) {
	phaseStart := time.Now()
	_, span := tracing.StartChildSpan(ctx, "index")
	defer span.End()

	size := (len(docs) + b.opts.Workers - 1) / b.opts.Workers
	chunks := (len(docs) + size - 1) / size
	partials := make([]*index.InvertedIndex, chunks)

	var g errgroup.Group
	for c := 0; c < chunks; c++ {
		c := c
		lo, hi := c*size, min((c+1)*size, len(docs))
		g.Go(func() error {
			part := index.New(b.opts.MaxPositions)
			for _, d := range docs[lo:hi] {
				if err := part.AddDocument(d.ID, d.Tokens); err != nil {
					return err
				}
			}
			partials[c] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building partial index: %w", err)
	}

	merged := partials[0]
	for _, part := range partials[1:] {
		if part == nil {
			continue
		}
		if err := merged.Merge(part); err != nil {
			return nil, fmt.Errorf("merging partial index: %w", err)
		}
	}
	span.SetAttr("partials", chunks)
	span.SetAttr("terms", merged.TermCount())
	b.observePhase("index", phaseStart)
	return merged, nil
}

// announce publishes the index.complete event. A failure is logged, not
// returned: the snapshot is already durable and watchers of CURRENT pick it
// up regardless.
func (b *Builder) announce(ctx context.Context, snap *snapshot.Snapshot, file string, stats Stats) {
	if b.publisher == nil {
		return
	}
	event := kafka.Event{
		Key:  snap.ID,
		Type: proto.EventIndexComplete,
		Value: proto.IndexComplete{
			SnapshotID:    snap.ID,
			File:          file,
			Documents:     stats.Documents,
			UniqueTerms:   stats.UniqueTerms,
			Features:      stats.VocabularySize,
			AvgDocLength:  stats.AvgDocLength,
			Warnings:      stats.Warnings,
			CreatedAtUnix: snap.CreatedAt.Unix(),
		},
	}
	err := resilience.Retry(ctx, "publish index.complete", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return b.publisher.Publish(ctx, event)
	})
	if err != nil {
		b.logger.Error("announcing snapshot failed", "snapshot_id", snap.ID, "error", err)
	}
}

func (b *Builder) observePhase(phase string, start time.Time) {
	if b.metrics != nil {
		b.metrics.BuildDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}

func (b *Builder) countBuild(status string) {
	if b.metrics != nil {
		b.metrics.BuildsTotal.WithLabelValues(status).Inc()
	}
}
