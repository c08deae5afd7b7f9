package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/geodex-labs/geodex/internal/lifecycle"
	"github.com/geodex-labs/geodex/pkg/models"
)

// Builder executes the tool stages of one build job.
type Builder struct {
	toolset Toolset
	runner  ToolRunner
	fetcher *Fetcher
	counter DocumentCounter // nil disables document counts
	workDir string
	logger  *slog.Logger
}

func NewBuilder(toolset Toolset, runner ToolRunner, fetcher *Fetcher, counter DocumentCounter, workDir string, logger *slog.Logger) *Builder {
	return &Builder{
		toolset: toolset,
		runner:  runner,
		fetcher: fetcher,
		counter: counter,
		workDir: workDir,
		logger:  logger,
	}
}

// Build materializes the data source and runs the stages for the job's
// index type in order. On success it returns the document count the
// search engine reports for the finished index, or 0 when counting is
// disabled or fails.
func (b *Builder) Build(ctx context.Context, job lifecycle.Job) (int64, error) {
	workDir := filepath.Join(b.workDir, fmt.Sprintf("build-%d-%d", job.Index.ID, job.Token.StartedAt.UnixNano()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return 0, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	input, err := b.fetcher.Fetch(ctx, job.Index.DataSource, workDir)
	if err != nil {
		return 0, fmt.Errorf("fetch data source: %w", err)
	}

	stages, err := b.toolset.StagesFor(job.Index, workDir, input)
	if err != nil {
		return 0, err
	}

	for _, stage := range stages {
		b.logger.Info("stage started",
			slog.String("stage", stage.Name),
			slog.Int64("index_id", job.Index.ID))

		if err := b.runner.Run(ctx, stage); err != nil {
			return 0, fmt.Errorf("stage %s: %w", stage.Name, err)
		}

		b.logger.Info("stage completed",
			slog.String("stage", stage.Name),
			slog.Int64("index_id", job.Index.ID))
	}

	return b.documentCount(ctx, job.Index), nil
}

func (b *Builder) documentCount(ctx context.Context, idx models.Index) int64 {
	if b.counter == nil {
		return 0
	}
	count, err := b.counter.DocumentCount(ctx, idx.SearchIndex())
	if err != nil {
		b.logger.Warn("document count unavailable",
			slog.String("index", idx.SearchIndex()),
			slog.String("error", err.Error()))
		return 0
	}
	return count
}
