package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/internal/lifecycle"
	"github.com/geodex-labs/geodex/pkg/models"
)

// Worker executes queued build jobs on this host.
type Worker struct {
	catalog  catalog.Catalog
	builder  *Builder
	reporter Reporter
	timeout  time.Duration // per-build; 0 means unbounded
	logger   *slog.Logger
}

func NewWorker(cat catalog.Catalog, builder *Builder, reporter Reporter, timeout time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		catalog:  cat,
		builder:  builder,
		reporter: reporter,
		timeout:  timeout,
		logger:   logger,
	}
}

// Handle runs one queued build. It returns an error only when the job
// could not be attempted or its outcome could not be recorded; build
// failures are reported to the lifecycle and count as handled.
func (w *Worker) Handle(ctx context.Context, msg BuildMessage) error {
	token, err := models.DecodeStatus(msg.Token)
	if err != nil {
		w.logger.Error("bad token in build message",
			slog.Int64("index_id", msg.IndexID),
			slog.String("error", err.Error()))
		return nil
	}

	idx, err := w.catalog.Get(ctx, msg.IndexID)
	if errors.Is(err, catalog.ErrNotFound) {
		w.logger.Warn("queued build for unknown index", slog.Int64("index_id", msg.IndexID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load index %d: %w", msg.IndexID, err)
	}

	// The status may have moved while the job sat in the queue: a force
	// reset or a newer declare makes this job stale.
	if !idx.Status.Equal(token) {
		w.logger.Info("skipping superseded build",
			slog.Int64("index_id", msg.IndexID),
			slog.String("status", idx.Status.String()))
		return nil
	}

	runCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	count, err := w.builder.Build(runCtx, lifecycle.Job{Index: idx, Token: token})
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; leave the message pending so the next run
			// picks it up.
			return ctx.Err()
		}
		reason := err.Error()
		if runCtx.Err() == context.DeadlineExceeded {
			reason = fmt.Sprintf("timeout after %s", w.timeout)
		}
		return w.reporter.JobFailed(ctx, msg.IndexID, token, reason)
	}
	return w.reporter.JobSucceeded(ctx, msg.IndexID, token, count)
}
