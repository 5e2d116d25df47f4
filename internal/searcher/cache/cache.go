// Package cache memoises ranked result lists in Redis, keyed by snapshot so
// that a newly published snapshot never serves results computed against an
// older one.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "docrank:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Get returns the cached list for (snapshotID, query, k). Backend errors
// count as misses.
func (c *QueryCache) Get(ctx context.Context, snapshotID, query string, k int) ([]ranker.Result, bool) {
	key := BuildKey(snapshotID, query, k)
	var results []ranker.Result
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		found, err = c.backend.GetJSON(ctx, key, &results)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "snapshot_id", snapshotID, "key", key)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, snapshotID, query string, k int, results []ranker.Result) {
	key := BuildKey(snapshotID, query, k)
	err := c.breaker.Execute(func() error {
		return c.backend.SetJSON(ctx, key, results, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute implements ranker.ResultCache. Concurrent misses for the same
// key share one computation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	snapshotID, query string,
	k int,
	compute func() ([]ranker.Result, error),
) ([]ranker.Result, bool, error) {
	if results, ok := c.Get(ctx, snapshotID, query, k); ok {
		return results, true, nil
	}
	key := BuildKey(snapshotID, query, k)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, snapshotID, query, k, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.Result), false, nil
}

// Invalidate drops every entry computed against snapshotID. An empty id
// drops everything.
func (c *QueryCache) Invalidate(ctx context.Context, snapshotID string) error {
	pattern := keyPrefix + "*"
	if snapshotID != "" {
		pattern = keyPrefix + snapshotID + ":*"
	}
	deleted, err := c.backend.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "snapshot_id", snapshotID, "keys_deleted", deleted)
	return nil
}

// BreakerState reports whether Redis calls are currently short-circuited.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the normalised query so that "Cat!" and "cat" share an
// entry.
func BuildKey(snapshotID, query string, k int) string {
	raw := fmt.Sprintf("%s:k=%d", tokenizer.Normalize(query), k)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, snapshotID, hash[:16])
}
