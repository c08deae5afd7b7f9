// Package lifecycle drives indexes through their build state machine. The
// Engine is the single writer of status transitions: handlers, workers and
// the scheduler all go through it, and the catalog's compare-and-swap is the
// arbiter whenever two of them race.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/pkg/models"
)

// Job is one build attempt handed to a dispatcher. Token is the Running
// status this attempt wrote; completions must present it again, which is how
// results of cancelled or superseded attempts get recognized and discarded.
type Job struct {
	Index models.Index
	Token models.Status
}

// Dispatcher hands build jobs to an executor, in-process or via a queue.
// Dispatch must fail fast and synchronously for jobs that can never run;
// Cancel is best-effort.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
	Cancel(indexID int64)
}

type DeclareParams struct {
	IndexType  models.IndexType
	DataSource string
	Region     string
	Force      bool
}

type Engine struct {
	catalog    catalog.Catalog
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewEngine(cat catalog.Catalog, dispatcher Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{catalog: cat, dispatcher: dispatcher, logger: logger}
}

// Declare registers the index if needed and starts a build unless one is
// already running or the index is already built. With Force it restarts
// regardless, cancelling any in-flight attempt first. Declaring something
// another caller just declared is not an error: the loser of that race gets
// the winner's record back. The second return reports whether this call
// started a new build attempt.
func (e *Engine) Declare(ctx context.Context, params DeclareParams) (models.Index, bool, error) {
	idx, err := e.getOrCreate(ctx, params)
	if err != nil {
		return models.Index{}, false, err
	}

	switch idx.Status.Kind {
	case models.StatusKindRunning:
		if !params.Force {
			return idx, false, nil
		}
		e.dispatcher.Cancel(idx.ID)
		idx, err = e.catalog.Reset(ctx, idx.ID)
		if err != nil {
			return models.Index{}, false, err
		}
	case models.StatusKindAvailable:
		if !params.Force {
			return idx, false, nil
		}
	}

	prior := idx.Status
	token := models.StatusRunning(time.Now())
	if !CanTransition(prior, token) {
		return models.Index{}, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prior.Kind, token.Kind)
	}

	idx, err = e.catalog.UpdateStatus(ctx, idx.ID, prior, token)
	if err != nil {
		if errors.Is(err, catalog.ErrStale) {
			// A concurrent declare won; hand its state back instead of failing.
			idx, err = e.catalog.GetByKey(ctx, params.IndexType, params.DataSource, params.Region)
			return idx, false, err
		}
		return models.Index{}, false, err
	}

	if err := e.dispatcher.Dispatch(ctx, Job{Index: idx, Token: token}); err != nil {
		e.rollback(ctx, idx.ID, token, prior)
		return models.Index{}, false, err
	}

	e.logger.Info("build dispatched",
		slog.Int64("index_id", idx.ID),
		slog.String("index_type", string(idx.IndexType)),
		slog.String("region", idx.Region))
	return idx, true, nil
}

// ForceReset cancels any in-flight build and returns the index to
// NotAvailable. It works from every state; a completion from the cancelled
// attempt later fails its token check and is discarded.
func (e *Engine) ForceReset(ctx context.Context, id int64) (models.Index, error) {
	e.dispatcher.Cancel(id)
	idx, err := e.catalog.Reset(ctx, id)
	if err != nil {
		return models.Index{}, err
	}
	e.logger.Info("index reset", slog.Int64("index_id", id))
	return idx, nil
}

func (e *Engine) getOrCreate(ctx context.Context, params DeclareParams) (models.Index, error) {
	idx, err := e.catalog.Create(ctx, catalog.CreateParams{
		IndexType:  params.IndexType,
		DataSource: params.DataSource,
		Region:     params.Region,
	})
	if err == nil {
		e.logger.Info("index declared",
			slog.Int64("index_id", idx.ID),
			slog.String("index_type", string(idx.IndexType)),
			slog.String("region", idx.Region))
		return idx, nil
	}
	if !errors.Is(err, catalog.ErrConflict) {
		return models.Index{}, err
	}
	return e.catalog.GetByKey(ctx, params.IndexType, params.DataSource, params.Region)
}

// rollback undoes the Running claim after a synchronous dispatch failure.
// The swap back is store-level only, so restoring a non-Running prior status
// is fine; if even that comes back stale, some newer writer owns the row now
// and the claim is already gone.
func (e *Engine) rollback(ctx context.Context, id int64, token, prior models.Status) {
	if _, err := e.catalog.UpdateStatus(ctx, id, token, prior); err != nil && !errors.Is(err, catalog.ErrStale) {
		e.logger.Error("rollback after dispatch failure",
			slog.Int64("index_id", id),
			slog.String("error", err.Error()))
	}
}
