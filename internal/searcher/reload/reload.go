// Package reload keeps a searcher's published snapshot in step with the
// CURRENT pointer on disk. Reloads are triggered by a filesystem watch on
// the snapshot directory, by index.complete events from Kafka, or both.
package reload

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
)

// Invalidator drops cached results computed against a snapshot.
type Invalidator interface {
	Invalidate(ctx context.Context, snapshotID string) error
}

// Reloader republishes the snapshot CURRENT points at. A failed load leaves
// the published snapshot in place.
type Reloader struct {
	store   *snapshot.Store
	cache   Invalidator
	metrics *metrics.Metrics
	mu      sync.Mutex
	logger  *slog.Logger
}

func New(store *snapshot.Store) *Reloader {
	return &Reloader{
		store:  store,
		logger: slog.Default().With("component", "snapshot-reloader"),
	}
}

func (r *Reloader) WithInvalidator(inv Invalidator) *Reloader {
	r.cache = inv
	return r
}

func (r *Reloader) WithMetrics(m *metrics.Metrics) *Reloader {
	r.metrics = m
	return r
}

// Reload loads and publishes the CURRENT snapshot if it differs from the
// published one. changed reports whether a new snapshot went live.
func (r *Reloader) Reload(ctx context.Context, reason string) (snap *snapshot.Snapshot, changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, _ := r.store.Current()
	snap, err = r.store.Reload()
	if err != nil {
		r.count("error")
		if errors.Is(err, apperrors.ErrIndexNotLoaded) {
			r.logger.Warn("no snapshot to load yet", "reason", reason, "dir", r.store.Dir())
		} else {
			r.logger.Error("snapshot reload failed", "reason", reason, "error", err)
		}
		return nil, false, err
	}
	if prev != nil && prev.ID == snap.ID {
		r.count("unchanged")
		return snap, false, nil
	}

	r.count("ok")
	if r.metrics != nil {
		r.metrics.SnapshotDocuments.Set(float64(len(snap.Docs)))
		r.metrics.VocabularySize.Set(float64(snap.Model.Size()))
	}
	attrs := []any{"reason", reason, "snapshot_id", snap.ID, "docs", len(snap.Docs)}
	if prev != nil {
		attrs = append(attrs, "previous_id", prev.ID)
		if r.cache != nil {
			if err := r.cache.Invalidate(ctx, prev.ID); err != nil {
				r.logger.Warn("cache invalidation failed", "snapshot_id", prev.ID, "error", err)
			}
		}
	}
	r.logger.Info("snapshot reloaded", attrs...)
	return snap, true, nil
}

func (r *Reloader) count(status string) {
	if r.metrics != nil {
		r.metrics.SnapshotLoadsTotal.WithLabelValues(status).Inc()
	}
}
