// Package workers provides background worker goroutines.
package workers

import (
	"context"
	"time"

	"github.com/dtorcivia/calbook/internal/kvstore"
	"github.com/dtorcivia/calbook/internal/metrics"
	"github.com/dtorcivia/calbook/internal/util"
)

// DefaultCleanupInterval is used when no interval is configured.
const DefaultCleanupInterval = 5 * time.Minute

// CleanupWorker purges expired keyed-store entries: abandoned
// authorization states and idle scheduling sessions.
type CleanupWorker struct {
	store    kvstore.Store
	metrics  *metrics.Metrics
	interval time.Duration
}

// NewCleanupWorker creates a new cleanup worker.
func NewCleanupWorker(store kvstore.Store, m *metrics.Metrics, interval time.Duration) *CleanupWorker {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupWorker{
		store:    store,
		metrics:  m,
		interval: interval,
	}
}

// Start runs the worker until ctx is done.
func (w *CleanupWorker) Start(ctx context.Context) {
	util.Info("Starting cleanup worker", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			util.Info("Cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce purges expired entries and reports how many were removed.
func (w *CleanupWorker) RunOnce(ctx context.Context) int64 {
	n, err := w.store.Purge(ctx)
	if err != nil {
		util.Error("Failed to purge expired entries", "error", err)
		return 0
	}
	w.metrics.StorePurged(n)
	if n > 0 {
		util.Info("Purged expired entries", "count", n)
	}
	return n
}
