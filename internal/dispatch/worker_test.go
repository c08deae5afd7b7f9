package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/internal/catalog/memory"
	"github.com/geodex-labs/geodex/pkg/models"
)

func newTestWorker(t *testing.T, cat catalog.Catalog, runner ToolRunner, reporter Reporter) *Worker {
	t.Helper()
	ts := Toolset{ToolsDir: "/opt/tools", SearchURL: "http://search:9200"}
	b := NewBuilder(ts, runner, NewFetcher(nil), nil, t.TempDir(), discardLogger())
	return NewWorker(cat, b, reporter, time.Minute, discardLogger())
}

func runningIndex(t *testing.T, cat catalog.Catalog) (models.Index, models.Status) {
	t.Helper()
	ctx := context.Background()

	idx, err := cat.Create(ctx, catalog.CreateParams{
		IndexType:  models.IndexTypeOSM,
		DataSource: "/data/france.pbf",
		Region:     "fr",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	token := models.StatusRunning(time.Now())
	if _, err := cat.UpdateStatus(ctx, idx.ID, models.StatusNotAvailable(), token); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	return idx, token
}

func buildMessage(t *testing.T, idx models.Index, token models.Status) BuildMessage {
	t.Helper()
	encoded, err := models.EncodeStatus(token)
	if err != nil {
		t.Fatalf("EncodeStatus: %v", err)
	}
	return BuildMessage{
		IndexID:    idx.ID,
		IndexType:  idx.IndexType,
		DataSource: idx.DataSource,
		Region:     idx.Region,
		Token:      encoded,
	}
}

func TestWorkerHandleRunsQueuedBuild(t *testing.T) {
	cat := memory.New()
	idx, token := runningIndex(t, cat)

	runner := &fakeRunner{}
	rep := newFakeReporter()
	w := newTestWorker(t, cat, runner, rep)

	if err := w.Handle(context.Background(), buildMessage(t, idx, token)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	out := rep.wait(t)
	if out.failed {
		t.Fatalf("expected success, got failure: %s", out.reason)
	}
	if out.id != idx.ID {
		t.Errorf("expected index %d, got %d", idx.ID, out.id)
	}
	if !out.token.Equal(token) {
		t.Errorf("expected token %s, got %s", token, out.token)
	}

	if stages := runner.ran(); len(stages) != 1 {
		t.Errorf("expected 1 stage, got %d", len(stages))
	}
}

func TestWorkerHandleSkipsSupersededBuild(t *testing.T) {
	cat := memory.New()
	idx, token := runningIndex(t, cat)

	// A force reset landed while the job sat in the queue.
	if _, err := cat.Reset(context.Background(), idx.ID); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	runner := &fakeRunner{}
	rep := newFakeReporter()
	w := newTestWorker(t, cat, runner, rep)

	if err := w.Handle(context.Background(), buildMessage(t, idx, token)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	rep.assertNone(t, 50*time.Millisecond)
	if stages := runner.ran(); len(stages) != 0 {
		t.Errorf("expected no stages to run, got %d", len(stages))
	}
}

func TestWorkerHandleUnknownIndex(t *testing.T) {
	cat := memory.New()
	rep := newFakeReporter()
	w := newTestWorker(t, cat, &fakeRunner{}, rep)

	msg := buildMessage(t, models.Index{ID: 999, IndexType: models.IndexTypeOSM, Region: "fr"}, models.StatusRunning(time.Now()))
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	rep.assertNone(t, 50*time.Millisecond)
}

func TestWorkerHandleBadToken(t *testing.T) {
	cat := memory.New()
	idx, token := runningIndex(t, cat)

	rep := newFakeReporter()
	w := newTestWorker(t, cat, &fakeRunner{}, rep)

	msg := buildMessage(t, idx, token)
	msg.Token = "not-a-status"

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	rep.assertNone(t, 50*time.Millisecond)
}

func TestWorkerHandleBuildFailureReportsFailed(t *testing.T) {
	cat := memory.New()
	idx, token := runningIndex(t, cat)

	runner := &fakeRunner{errs: map[string]error{
		"osm-ingestion-tool": errors.New("exit status 1: out of disk"),
	}}
	rep := newFakeReporter()
	w := newTestWorker(t, cat, runner, rep)

	if err := w.Handle(context.Background(), buildMessage(t, idx, token)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	out := rep.wait(t)
	if !out.failed {
		t.Fatal("expected failure report")
	}
	if !strings.Contains(out.reason, "stage osm-ingestion-tool") {
		t.Errorf("expected stage in reason, got %q", out.reason)
	}
}

func TestWorkerHandleCatalogUnavailable(t *testing.T) {
	cat := memory.New()
	idx, token := runningIndex(t, cat)
	cat.SetHealthy(false)

	rep := newFakeReporter()
	w := newTestWorker(t, cat, &fakeRunner{}, rep)

	// An unreachable catalog is retryable: the message must not ack.
	if err := w.Handle(context.Background(), buildMessage(t, idx, token)); err == nil {
		t.Fatal("expected error when the catalog is down")
	}
	rep.assertNone(t, 50*time.Millisecond)
}
