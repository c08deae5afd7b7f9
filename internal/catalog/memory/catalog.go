package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/pkg/models"
)

// Catalog keeps everything in a mutex-guarded map. It backs tests and
// throwaway deployments; semantics mirror the SQL backends exactly.
type Catalog struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]models.Index
	byKey   map[string]int64
	healthy bool
}

func New() *Catalog {
	return &Catalog{
		nextID:  1,
		byID:    make(map[int64]models.Index),
		byKey:   make(map[string]int64),
		healthy: true,
	}
}

func key(indexType models.IndexType, dataSource, region string) string {
	return fmt.Sprintf("%s/%s/%s", indexType, dataSource, region)
}

// down reports the simulated outage. Callers hold c.mu.
func (c *Catalog) down() error {
	if !c.healthy {
		return catalog.ErrUnavailable
	}
	return nil
}

func (c *Catalog) Create(_ context.Context, params catalog.CreateParams) (models.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.down(); err != nil {
		return models.Index{}, err
	}

	k := key(params.IndexType, params.DataSource, params.Region)
	if _, exists := c.byKey[k]; exists {
		return models.Index{}, fmt.Errorf("create index: %w", catalog.ErrConflict)
	}

	now := time.Now().Truncate(time.Second).UTC()
	idx := models.Index{
		ID:         c.nextID,
		IndexType:  params.IndexType,
		DataSource: params.DataSource,
		Region:     params.Region,
		Status:     models.StatusNotAvailable(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.nextID++
	c.byID[idx.ID] = idx
	c.byKey[k] = idx.ID
	return idx, nil
}

func (c *Catalog) Get(_ context.Context, id int64) (models.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.down(); err != nil {
		return models.Index{}, err
	}

	idx, ok := c.byID[id]
	if !ok {
		return models.Index{}, catalog.ErrNotFound
	}
	return idx, nil
}

func (c *Catalog) GetByKey(_ context.Context, indexType models.IndexType, dataSource, region string) (models.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.down(); err != nil {
		return models.Index{}, err
	}

	id, ok := c.byKey[key(indexType, dataSource, region)]
	if !ok {
		return models.Index{}, catalog.ErrNotFound
	}
	return c.byID[id], nil
}

func (c *Catalog) UpdateStatus(_ context.Context, id int64, from, to models.Status) (models.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.down(); err != nil {
		return models.Index{}, err
	}

	idx, ok := c.byID[id]
	if !ok {
		return models.Index{}, catalog.ErrNotFound
	}
	if !idx.Status.Equal(from) {
		return models.Index{}, fmt.Errorf("%w: status is %s, expected %s", catalog.ErrStale, idx.Status.Kind, from.Kind)
	}
	idx.Status = to
	idx.UpdatedAt = time.Now().Truncate(time.Second).UTC()
	c.byID[id] = idx
	return idx, nil
}

func (c *Catalog) Reset(_ context.Context, id int64) (models.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.down(); err != nil {
		return models.Index{}, err
	}

	idx, ok := c.byID[id]
	if !ok {
		return models.Index{}, catalog.ErrNotFound
	}
	idx.Status = models.StatusNotAvailable()
	idx.UpdatedAt = time.Now().Truncate(time.Second).UTC()
	c.byID[id] = idx
	return idx, nil
}

func (c *Catalog) List(_ context.Context, f catalog.Filter) ([]models.Index, error) {
	items, err := c.snapshot(f)
	if err != nil {
		return nil, err
	}
	if f.Offset > 0 {
		if f.Offset >= len(items) {
			return nil, nil
		}
		items = items[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items, nil
}

func (c *Catalog) All(_ context.Context, f catalog.Filter) iter.Seq2[models.Index, error] {
	f.Limit = 0
	f.Offset = 0
	return func(yield func(models.Index, error) bool) {
		items, err := c.snapshot(f)
		if err != nil {
			yield(models.Index{}, err)
			return
		}
		for _, idx := range items {
			if !yield(idx, nil) {
				return
			}
		}
	}
}

func (c *Catalog) snapshot(f catalog.Filter) ([]models.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.down(); err != nil {
		return nil, err
	}

	items := make([]models.Index, 0, len(c.byID))
	for _, idx := range c.byID {
		if f.Match(idx) {
			items = append(items, idx)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (c *Catalog) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.down()
}

// SetHealthy flips the simulated outage; while unhealthy every
// operation returns ErrUnavailable, the same as a dead backend.
func (c *Catalog) SetHealthy(healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = healthy
}

func (c *Catalog) Close() {}
