package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/internal/notify"
	"github.com/geodex-labs/geodex/pkg/models"
)

// Completer lands build outcomes. It is separate from the Engine so
// executors can report results without holding a dispatcher, and it never
// errors on a completion that lost its race: stale results are the normal
// aftermath of force-reset and crash recovery, not a fault.
type Completer struct {
	catalog catalog.Catalog
	bus     notify.Bus
	logger  *slog.Logger
}

// NewCompleter wires completions to the catalog and, when bus is non-nil,
// to the notification bus.
func NewCompleter(cat catalog.Catalog, bus notify.Bus, logger *slog.Logger) *Completer {
	return &Completer{catalog: cat, bus: bus, logger: logger}
}

// JobSucceeded moves the attempt identified by token to Available and
// publishes a Built event. A token that no longer matches means the attempt
// was superseded; its result is dropped without error.
func (c *Completer) JobSucceeded(ctx context.Context, id int64, token models.Status, documentCount int64) error {
	to := models.StatusAvailable(time.Now(), documentCount)
	idx, discarded, err := c.finish(ctx, id, token, to)
	if err != nil || discarded {
		return err
	}

	c.logger.Info("index built",
		slog.Int64("index_id", idx.ID),
		slog.String("index_type", string(idx.IndexType)),
		slog.String("region", idx.Region),
		slog.Int64("document_count", documentCount))
	c.publish(ctx, notify.Event{
		Type:          notify.EventBuilt,
		IndexID:       idx.ID,
		IndexType:     idx.IndexType,
		Region:        idx.Region,
		DocumentCount: documentCount,
		At:            idx.Status.BuiltAt,
	})
	return nil
}

// JobFailed moves the attempt identified by token to Error and publishes a
// Failed event carrying the reason. Stale tokens are dropped like in
// JobSucceeded.
func (c *Completer) JobFailed(ctx context.Context, id int64, token models.Status, reason string) error {
	to := models.StatusError(reason, time.Now())
	idx, discarded, err := c.finish(ctx, id, token, to)
	if err != nil || discarded {
		return err
	}

	c.logger.Warn("index build failed",
		slog.Int64("index_id", idx.ID),
		slog.String("index_type", string(idx.IndexType)),
		slog.String("region", idx.Region),
		slog.String("reason", reason))
	c.publish(ctx, notify.Event{
		Type:      notify.EventFailed,
		IndexID:   idx.ID,
		IndexType: idx.IndexType,
		Region:    idx.Region,
		Reason:    reason,
		At:        idx.Status.FailedAt,
	})
	return nil
}

func (c *Completer) finish(ctx context.Context, id int64, token, to models.Status) (models.Index, bool, error) {
	if !CanTransition(token, to) {
		return models.Index{}, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, token.Kind, to.Kind)
	}
	idx, err := c.catalog.UpdateStatus(ctx, id, token, to)
	if err != nil {
		if errors.Is(err, catalog.ErrStale) || errors.Is(err, catalog.ErrNotFound) {
			c.logger.Debug("discarding stale completion",
				slog.Int64("index_id", id),
				slog.String("to", string(to.Kind)))
			return models.Index{}, true, nil
		}
		return models.Index{}, false, err
	}
	return idx, false, nil
}

// publish is best-effort: the transition is already durable, and subscribers
// reconcile from the catalog on reconnect anyway.
func (c *Completer) publish(ctx context.Context, event notify.Event) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, event); err != nil {
		c.logger.Warn("publish event failed",
			slog.String("event_type", string(event.Type)),
			slog.Int64("index_id", event.IndexID),
			slog.String("error", err.Error()))
	}
}
