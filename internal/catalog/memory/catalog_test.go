package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/pkg/models"
)

func TestCreateAssignsDefaults(t *testing.T) {
	c := New()
	idx, err := c.Create(context.Background(), catalog.CreateParams{
		IndexType:  models.IndexTypeOSM,
		DataSource: "osm",
		Region:     "fr",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if idx.ID == 0 {
		t.Error("expected assigned id")
	}
	if idx.Status.Kind != models.StatusKindNotAvailable {
		t.Errorf("expected NotAvailable, got %s", idx.Status.Kind)
	}
}

func TestCreateDuplicateKeyConflicts(t *testing.T) {
	c := New()
	ctx := context.Background()
	params := catalog.CreateParams{IndexType: models.IndexTypeBANO, DataSource: "bano", Region: "fr"}

	if _, err := c.Create(ctx, params); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Create(ctx, params); !errors.Is(err, catalog.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// Same type in another region is a different index.
	params.Region = "be"
	if _, err := c.Create(ctx, params); err != nil {
		t.Errorf("create in second region: %v", err)
	}
}

func TestUpdateStatusCAS(t *testing.T) {
	c := New()
	ctx := context.Background()
	idx, err := c.Create(ctx, catalog.CreateParams{IndexType: models.IndexTypeOSM, DataSource: "osm", Region: "fr"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	running := models.StatusRunning(time.Now())
	updated, err := c.UpdateStatus(ctx, idx.ID, models.StatusNotAvailable(), running)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status.Kind != models.StatusKindRunning {
		t.Errorf("expected Running, got %s", updated.Status.Kind)
	}

	// A second writer still expecting NotAvailable must lose.
	_, err = c.UpdateStatus(ctx, idx.ID, models.StatusNotAvailable(), models.StatusRunning(time.Now()))
	if !errors.Is(err, catalog.ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}

	// A completion carrying the right attempt token wins.
	if _, err := c.UpdateStatus(ctx, idx.ID, running, models.StatusAvailable(time.Now(), 42)); err != nil {
		t.Errorf("complete: %v", err)
	}
}

func TestUpdateStatusStaleAttemptToken(t *testing.T) {
	c := New()
	ctx := context.Background()
	idx, _ := c.Create(ctx, catalog.CreateParams{IndexType: models.IndexTypeOSM, DataSource: "osm", Region: "fr"})

	first := models.StatusRunning(time.Now())
	if _, err := c.UpdateStatus(ctx, idx.ID, models.StatusNotAvailable(), first); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Force-reset and restart: a new attempt begins.
	if _, err := c.Reset(ctx, idx.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	second := models.StatusRunning(first.StartedAt.Add(time.Nanosecond))
	if _, err := c.UpdateStatus(ctx, idx.ID, models.StatusNotAvailable(), second); err != nil {
		t.Fatalf("restart: %v", err)
	}

	// The first attempt's completion must now be rejected.
	_, err := c.UpdateStatus(ctx, idx.ID, first, models.StatusAvailable(time.Now(), 100))
	if !errors.Is(err, catalog.ErrStale) {
		t.Errorf("expected ErrStale for stale token, got %v", err)
	}
}

func TestResetAlwaysSucceeds(t *testing.T) {
	c := New()
	ctx := context.Background()
	idx, _ := c.Create(ctx, catalog.CreateParams{IndexType: models.IndexTypeCosmogony, DataSource: "cosmogony", Region: "de"})

	for _, status := range []models.Status{
		models.StatusRunning(time.Now()),
		models.StatusError("boom", time.Now()),
		models.StatusAvailable(time.Now(), 7),
	} {
		cur, err := c.Get(ctx, idx.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if _, err := c.UpdateStatus(ctx, idx.ID, cur.Status, status); err != nil {
			t.Fatalf("seed %s: %v", status.Kind, err)
		}
		got, err := c.Reset(ctx, idx.ID)
		if err != nil {
			t.Fatalf("reset from %s: %v", status.Kind, err)
		}
		if got.Status.Kind != models.StatusKindNotAvailable {
			t.Errorf("reset from %s: got %s", status.Kind, got.Status.Kind)
		}
	}

	if _, err := c.Reset(ctx, 999); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFilterAndOrder(t *testing.T) {
	c := New()
	ctx := context.Background()
	seed := []catalog.CreateParams{
		{IndexType: models.IndexTypeOSM, DataSource: "osm", Region: "fr"},
		{IndexType: models.IndexTypeOSM, DataSource: "osm", Region: "be"},
		{IndexType: models.IndexTypeBANO, DataSource: "bano", Region: "fr"},
	}
	for _, p := range seed {
		if _, err := c.Create(ctx, p); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := c.List(ctx, catalog.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Errorf("expected stable id order, got %d before %d", all[i-1].ID, all[i].ID)
		}
	}

	fr, err := c.List(ctx, catalog.Filter{Region: "fr"})
	if err != nil {
		t.Fatalf("list fr: %v", err)
	}
	if len(fr) != 2 {
		t.Errorf("expected 2 in fr, got %d", len(fr))
	}

	osm, err := c.List(ctx, catalog.Filter{Type: models.IndexTypeOSM, Region: "be"})
	if err != nil {
		t.Fatalf("list osm be: %v", err)
	}
	if len(osm) != 1 {
		t.Errorf("expected 1 osm in be, got %d", len(osm))
	}

	running, err := c.List(ctx, catalog.Filter{Status: models.StatusKindRunning})
	if err != nil {
		t.Fatalf("list running: %v", err)
	}
	if len(running) != 0 {
		t.Errorf("expected no running indexes, got %d", len(running))
	}
}

func TestAllIsRestartable(t *testing.T) {
	c := New()
	ctx := context.Background()
	for _, region := range []string{"fr", "be", "de"} {
		if _, err := c.Create(ctx, catalog.CreateParams{IndexType: models.IndexTypeOSM, DataSource: "osm", Region: region}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	seq := c.All(ctx, catalog.Filter{})
	for pass := 0; pass < 2; pass++ {
		var n int
		for _, err := range seq {
			if err != nil {
				t.Fatalf("pass %d: %v", pass, err)
			}
			n++
		}
		if n != 3 {
			t.Errorf("pass %d: expected 3, got %d", pass, n)
		}
	}
}
