package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/batch"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/querylog"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
)

// maxBatchBody bounds the CSV accepted by POST /api/v1/batch.
const maxBatchBody = 4 << 20

// CacheAdmin is the part of the query cache exposed over HTTP.
type CacheAdmin interface {
	Stats() (hits, misses int64)
	BreakerState() resilience.State
	Invalidate(ctx context.Context, snapshotID string) error
}

type Handler struct {
	searcher *ranker.Searcher
	store    *snapshot.Store
	cache    CacheAdmin
	queries  *querylog.Aggregator
	metrics  *metrics.Metrics
	defaultK int
	maxK     int
	logger   *slog.Logger
}

func New(searcher *ranker.Searcher, store *snapshot.Store, defaultK, maxK int) *Handler {
	return &Handler{
		searcher: searcher,
		store:    store,
		defaultK: defaultK,
		maxK:     maxK,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) WithCache(c CacheAdmin) *Handler {
	h.cache = c
	return h
}

// WithQueryLog records every successful search in agg.
func (h *Handler) WithQueryLog(agg *querylog.Aggregator) *Handler {
	h.queries = agg
	return h
}

func (h *Handler) WithMetrics(m *metrics.Metrics) *Handler {
	h.metrics = m
	return h
}

// Search serves GET /api/v1/search?q=&k=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, r, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	k, err := h.parseK(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	resp, err := h.searcher.Query(ctx, query, k)
	if err != nil {
		log.Error("search failed", "query", query, "k", k, "error", err)
		h.writeAppError(w, r, err)
		return
	}

	latency := time.Since(start)
	latencyMs := latency.Milliseconds()
	if h.queries != nil {
		h.queries.Record(querylog.Entry{Query: query, Results: len(resp.Results), Latency: latency, CacheHit: resp.Cached})
	}
	log.Info("search completed",
		"query", query,
		"k", k,
		"returned", len(resp.Results),
		"snapshot_id", resp.SnapshotID,
		"cache_hit", resp.Cached,
		"latency_ms", latencyMs,
	)

	results := make([]proto.SearchResult, len(resp.Results))
	for i, res := range resp.Results {
		results[i] = proto.SearchResult(res)
	}
	h.writeJSON(w, http.StatusOK, proto.SearchResponse{
		Query:      query,
		K:          k,
		SnapshotID: resp.SnapshotID,
		Total:      len(results),
		Results:    results,
		LatencyMs:  latencyMs,
		Cached:     resp.Cached,
	})
}

// Batch serves POST /api/v1/batch. The body is a query_id,query_text CSV and
// the response is the query_id,doc_id,rank,score CSV.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	k, err := h.parseK(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	queries, err := batch.ReadQueries(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	rows, err := batch.Run(r.Context(), h.searcher, queries, k)
	if err != nil {
		logger.FromContext(r.Context()).Error("batch failed", "queries", len(queries), "error", err)
		h.writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := batch.Write(r.Context(), batch.NewCSVSink(w), rows, h.metrics); err != nil {
		h.logger.Error("failed to write batch response", "error", err)
	}
}

// Stats serves GET /api/v1/stats for the published snapshot.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Current()
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, proto.StatsResponse{
		SnapshotID:   snap.ID,
		CreatedAt:    snap.CreatedAt.UTC().Format(time.RFC3339),
		Documents:    len(snap.Docs),
		UniqueTerms:  snap.Index.TermCount(),
		Features:     snap.Model.Size(),
		AvgDocLength: snap.AvgDocLength(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

// Explain serves GET /api/v1/explain?q= with the query's term statistics
// and vector against the published snapshot.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, r, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	snap, err := h.store.Current()
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	exp, err := ranker.Explain(snap, query)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, exp)
}

// Analytics serves GET /api/v1/analytics.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.queries == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.queries.Stats())
}

// CacheInvalidate drops cached results for ?snapshot_id=, or all of them.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context(), r.URL.Query().Get("snapshot_id")); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// SnapshotCheck reports the published snapshot as a readiness component.
func (h *Handler) SnapshotCheck(ctx context.Context) health.ComponentHealth {
	snap, err := h.store.Current()
	if err != nil {
		return health.ComponentHealth{Status: health.StatusDown, Message: "no snapshot loaded"}
	}
	return health.ComponentHealth{
		Status: health.StatusUp,
		Details: map[string]any{
			"snapshot_id": snap.ID,
			"documents":   len(snap.Docs),
			"vocabulary":  snap.Model.Size(),
		},
	}
}

func (h *Handler) parseK(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("k")
	if raw == "" {
		return h.defaultK, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 {
		return 0, fmt.Errorf("%w: k must be a positive integer, got %q", apperrors.ErrInvalidQueryParameter, raw)
	}
	return min(k, h.maxK), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, status, proto.ErrorResponse{
		Error:     message,
		RequestID: logger.RequestID(r.Context()),
	})
}

// writeAppError maps err to a status. Server-side failures are not echoed.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		msg = "internal error"
	}
	h.writeError(w, r, status, msg)
}
