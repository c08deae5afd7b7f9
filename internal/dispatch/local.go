package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geodex-labs/geodex/internal/lifecycle"
)

// reportTimeout bounds the catalog write that records a build outcome.
const reportTimeout = 30 * time.Second

// Local runs builds on this host, one goroutine per job.
type Local struct {
	builder  *Builder
	reporter Reporter
	timeout  time.Duration // per-build; 0 means unbounded
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[int64]context.CancelFunc
	wg       sync.WaitGroup
}

func NewLocal(builder *Builder, reporter Reporter, timeout time.Duration, logger *slog.Logger) *Local {
	return &Local{
		builder:  builder,
		reporter: reporter,
		timeout:  timeout,
		logger:   logger,
		inflight: make(map[int64]context.CancelFunc),
	}
}

// Dispatch starts the build in the background. The job detaches from the
// caller's context so an HTTP request ending does not kill the build.
func (d *Local) Dispatch(ctx context.Context, job lifecycle.Job) error {
	if !d.builder.toolset.Supports(job.Index.IndexType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, job.Index.IndexType)
	}

	d.mu.Lock()
	if _, running := d.inflight[job.Index.ID]; running {
		d.mu.Unlock()
		return fmt.Errorf("%w: index %d", ErrAlreadyRunning, job.Index.ID)
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	d.inflight[job.Index.ID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(jobCtx, job)
	return nil
}

// Cancel stops the in-flight build for the index, if any. The canceled
// job reports nothing; the caller is about to overwrite the status.
func (d *Local) Cancel(indexID int64) {
	d.mu.Lock()
	cancel, ok := d.inflight[indexID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

// InFlight reports whether a build for the index is currently running.
func (d *Local) InFlight(indexID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[indexID]
	return ok
}

// Close cancels all running builds and waits for their goroutines.
func (d *Local) Close() {
	d.mu.Lock()
	for _, cancel := range d.inflight {
		cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Local) run(ctx context.Context, job lifecycle.Job) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, job.Index.ID)
		d.mu.Unlock()
	}()

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	count, err := d.builder.Build(runCtx, job)

	// The run context is spent on exactly the paths that most need a
	// completion recorded, so reports get a fresh one.
	reportCtx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	switch {
	case err == nil:
		if rerr := d.reporter.JobSucceeded(reportCtx, job.Index.ID, job.Token, count); rerr != nil {
			d.logger.Error("report build success",
				slog.Int64("index_id", job.Index.ID),
				slog.String("error", rerr.Error()))
		}
	case ctx.Err() == context.Canceled:
		// Canceled means superseded or shutting down. Whoever canceled
		// owns the status now.
		d.logger.Info("build canceled", slog.Int64("index_id", job.Index.ID))
	default:
		reason := err.Error()
		if runCtx.Err() == context.DeadlineExceeded {
			reason = fmt.Sprintf("timeout after %s", d.timeout)
		}
		if rerr := d.reporter.JobFailed(reportCtx, job.Index.ID, job.Token, reason); rerr != nil {
			d.logger.Error("report build failure",
				slog.Int64("index_id", job.Index.ID),
				slog.String("error", rerr.Error()))
		}
	}
}
