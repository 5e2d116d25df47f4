package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
)

// ResultCache memoises ranked results per snapshot. Implementations must
// fall back to compute when the backing store is unavailable.
type ResultCache interface {
	GetOrCompute(ctx context.Context, snapshotID, query string, k int, compute func() ([]Result, error)) ([]Result, bool, error)
}

// Response is a ranked result list with the snapshot it was computed from.
type Response struct {
	SnapshotID string
	Results    []Result
	Cached     bool
}

// Searcher ranks queries against whatever snapshot the store currently
// publishes. It holds no locks; each query works on the snapshot it
// obtained when it started.
type Searcher struct {
	store   *snapshot.Store
	cache   ResultCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewSearcher(store *snapshot.Store) *Searcher {
	return &Searcher{
		store:  store,
		logger: slog.Default().With("component", "searcher"),
	}
}

func (s *Searcher) WithCache(c ResultCache) *Searcher {
	s.cache = c
	return s
}

func (s *Searcher) WithMetrics(m *metrics.Metrics) *Searcher {
	s.metrics = m
	return s
}

// Search returns the top k documents for query.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]Result, error) {
	resp, err := s.Query(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Query is Search plus the snapshot id and whether the cache answered.
func (s *Searcher) Query(ctx context.Context, query string, k int) (Response, error) {
	start := time.Now()
	if k < 1 {
		s.count("error")
		return Response{}, fmt.Errorf("%w: k must be >= 1, got %d", apperrors.ErrInvalidQueryParameter, k)
	}
	snap, err := s.store.Current()
	if err != nil {
		s.count("error")
		return Response{}, err
	}
	if err := ctx.Err(); err != nil {
		s.count("error")
		return Response{}, err
	}

	compute := func() ([]Result, error) { return Rank(snap, query, k) }
	var (
		results []Result
		cached  bool
	)
	if s.cache != nil {
		results, cached, err = s.cache.GetOrCompute(ctx, snap.ID, query, k, compute)
	} else {
		results, err = compute()
	}
	if err != nil {
		s.count("error")
		return Response{}, err
	}

	resultType := "hit"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	s.count(resultType)
	if s.metrics != nil {
		status := "miss"
		if cached {
			status = "hit"
		}
		s.metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
		s.metrics.SearchResultsCount.Observe(float64(len(results)))
	}
	logger.FromContext(ctx).Debug("query ranked",
		"component", "searcher",
		"snapshot_id", snap.ID,
		"k", k,
		"results", len(results),
		"cached", cached,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return Response{SnapshotID: snap.ID, Results: results, Cached: cached}, nil
}

func (s *Searcher) count(resultType string) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}
