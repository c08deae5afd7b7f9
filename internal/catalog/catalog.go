// Package catalog defines the durable store of declared indexes. Backends
// implement Catalog; all status writes go through the compare-and-swap
// UpdateStatus so concurrent writers cannot clobber each other, with Reset
// as the one unconditional escape hatch.
package catalog

import (
	"context"
	"errors"
	"iter"

	"github.com/geodex-labs/geodex/pkg/models"
)

var (
	// ErrNotFound means no index exists for the given id or key.
	ErrNotFound = errors.New("index not found")
	// ErrConflict means an index with the same (type, data source, region)
	// already exists.
	ErrConflict = errors.New("index already exists")
	// ErrStale means the stored status no longer equals the expected one:
	// the caller raced another writer or holds an outdated attempt token.
	ErrStale = errors.New("status changed concurrently")
	// ErrUnavailable wraps connection-class backend failures.
	ErrUnavailable = errors.New("catalog unavailable")
)

type CreateParams struct {
	IndexType  models.IndexType
	DataSource string
	Region     string
}

// Filter narrows List and All. Zero fields match everything. Limit and
// Offset apply to List only, after the stable (created_at, index_id) order.
type Filter struct {
	Type   models.IndexType
	Region string
	Status models.StatusKind
	Limit  int
	Offset int
}

func (f Filter) Match(idx models.Index) bool {
	if f.Type != "" && idx.IndexType != f.Type {
		return false
	}
	if f.Region != "" && idx.Region != f.Region {
		return false
	}
	if f.Status != "" && idx.Status.Kind != f.Status {
		return false
	}
	return true
}

type Catalog interface {
	// Create inserts a new index with the default NotAvailable status.
	Create(ctx context.Context, params CreateParams) (models.Index, error)

	Get(ctx context.Context, id int64) (models.Index, error)
	GetByKey(ctx context.Context, indexType models.IndexType, dataSource, region string) (models.Index, error)

	// UpdateStatus atomically replaces the status, but only while the stored
	// status still equals from. It does not judge whether the move is legal;
	// that is the lifecycle engine's job.
	UpdateStatus(ctx context.Context, id int64, from, to models.Status) (models.Index, error)

	// Reset unconditionally writes NotAvailable.
	Reset(ctx context.Context, id int64) (models.Index, error)

	List(ctx context.Context, f Filter) ([]models.Index, error)

	// All is the lazy form of List; every range over it re-runs the query.
	All(ctx context.Context, f Filter) iter.Seq2[models.Index, error]

	Ping(ctx context.Context) error
	Close()
}
