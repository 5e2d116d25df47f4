// Package querylog aggregates served queries into the statistics behind
// GET /api/v1/analytics: volume, latency percentiles, cache hit ratio and
// the most frequent queries with and without results.
package querylog

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/tokenizer"
)

// Entry is one served query.
type Entry struct {
	Query    string
	Results  int
	Latency  time.Duration
	CacheHit bool
}

type Stats struct {
	TotalQueries      int64        `json:"total_queries"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	CacheHits         int64        `json:"cache_hits"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals plus a ring of the most recent latencies.
// Queries are counted by their normalised form so "Cat!" and "cat" share a
// row.
type Aggregator struct {
	mu         sync.Mutex
	total      int64
	zero       int64
	cacheHits  int64
	latencies  []time.Duration
	next       int
	queries    map[string]int64
	zeroQuery  map[string]int64
	maxQueries int
	topN       int
	start      time.Time
	now        func() time.Time
	logger     *slog.Logger
}

// New returns an Aggregator that keeps window latencies and at most
// maxQueries distinct query strings per table.
func New(window, maxQueries, topN int) *Aggregator {
	if window <= 0 {
		window = 10000
	}
	if maxQueries <= 0 {
		maxQueries = 10000
	}
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		latencies:  make([]time.Duration, 0, window),
		queries:    make(map[string]int64),
		zeroQuery:  make(map[string]int64),
		maxQueries: maxQueries,
		topN:       topN,
		start:      time.Now(),
		now:        time.Now,
		logger:     slog.Default().With("component", "querylog"),
	}
}

func (a *Aggregator) Record(e Entry) {
	q := tokenizer.Normalize(e.Query)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if e.CacheHit {
		a.cacheHits++
	}
	if len(a.latencies) < cap(a.latencies) {
		a.latencies = append(a.latencies, e.Latency)
	} else {
		a.latencies[a.next] = e.Latency
		a.next = (a.next + 1) % len(a.latencies)
	}
	a.bump(a.queries, q)
	if e.Results == 0 {
		a.zero++
		a.bump(a.zeroQuery, q)
	}
}

// bump increments counts[q]. New queries are dropped once the table is full;
// known ones keep counting.
func (a *Aggregator) bump(counts map[string]int64, q string) {
	if _, ok := counts[q]; !ok && len(counts) >= a.maxQueries {
		a.logger.Debug("query table full, not tracking new query", "limit", a.maxQueries)
		return
	}
	counts[q]++
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalQueries:      a.total,
		ZeroResultCount:   a.zero,
		CacheHits:         a.cacheHits,
		TopQueries:        top(a.queries, a.topN),
		ZeroResultQueries: top(a.zeroQuery, a.topN),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum time.Duration
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = ms(sum / time.Duration(len(sorted)))
		stats.P50LatencyMs = ms(percentile(sorted, 50))
		stats.P95LatencyMs = ms(percentile(sorted, 95))
		stats.P99LatencyMs = ms(percentile(sorted, 99))
	}
	if elapsed := a.now().Sub(a.start).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

// Reset clears everything and restarts the rate clock.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total, a.zero, a.cacheHits = 0, 0, 0
	a.latencies = a.latencies[:0]
	a.next = 0
	clear(a.queries)
	clear(a.zeroQuery)
	a.start = a.now()
}

func percentile(sorted []time.Duration, pct int) time.Duration {
	idx := min(pct*len(sorted)/100, len(sorted)-1)
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// top returns the n highest counts, ties broken alphabetically.
func top(counts map[string]int64, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	slices.SortFunc(out, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
