package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/pkg/models"
)

// refreshConcurrency caps simultaneous rebuild declarations during a refresh
// pass; one slow dispatch must not stall the whole sweep.
const refreshConcurrency = 4

// SweepStale fails Running records whose attempt started more than olderThan
// ago and is not actually in flight. A crash between the Running claim and
// the completion leaves such rows behind and nothing else ever moves them
// again. inFlight may be nil when the caller has no executor of its own.
//
// Candidates are collected before any write: the sqlite backend runs on a
// single connection, and writing while a result set is open would wedge it.
func (c *Completer) SweepStale(ctx context.Context, olderThan time.Duration, inFlight func(int64) bool) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var stale []models.Index
	for idx, err := range c.catalog.All(ctx, catalog.Filter{Status: models.StatusKindRunning}) {
		if err != nil {
			return 0, fmt.Errorf("sweep stale: %w", err)
		}
		if idx.Status.StartedAt.After(cutoff) {
			continue
		}
		if inFlight != nil && inFlight(idx.ID) {
			continue
		}
		stale = append(stale, idx)
	}

	swept := 0
	for _, idx := range stale {
		if err := c.JobFailed(ctx, idx.ID, idx.Status, "build orphaned by restart"); err != nil {
			return swept, fmt.Errorf("sweep stale: %w", err)
		}
		swept++
	}
	if swept > 0 {
		c.logger.Info("swept orphaned builds", slog.Int("count", swept))
	}
	return swept, nil
}

// RefreshAging force-rebuilds Available indexes whose last build is older
// than maxAge. maxAge <= 0 disables it.
func (e *Engine) RefreshAging(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge)

	var aging []models.Index
	for idx, err := range e.catalog.All(ctx, catalog.Filter{Status: models.StatusKindAvailable}) {
		if err != nil {
			return 0, fmt.Errorf("refresh aging: %w", err)
		}
		if idx.Status.BuiltAt.After(cutoff) {
			continue
		}
		aging = append(aging, idx)
	}

	var refreshed atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(refreshConcurrency)
	for _, idx := range aging {
		eg.Go(func() error {
			_, _, err := e.Declare(egCtx, DeclareParams{
				IndexType:  idx.IndexType,
				DataSource: idx.DataSource,
				Region:     idx.Region,
				Force:      true,
			})
			if err != nil {
				// Declare failures leave the old build serving; log and move on.
				e.logger.Warn("refresh declare failed",
					slog.Int64("index_id", idx.ID),
					slog.String("error", err.Error()))
			} else {
				refreshed.Add(1)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return int(refreshed.Load()), fmt.Errorf("refresh aging: %w", err)
	}
	return int(refreshed.Load()), nil
}
