package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// stderrTailLimit bounds how much tool stderr is kept for the failure
// reason. Ingestion tools can log megabytes; the tail is what matters.
const stderrTailLimit = 4 * 1024

// ToolRunner executes one build stage.
type ToolRunner interface {
	Run(ctx context.Context, stage Stage) error
}

// ExecRunner runs stages as child processes.
type ExecRunner struct {
	logger *slog.Logger
}

func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, stage Stage) error {
	tail := &tailBuffer{limit: stderrTailLimit}

	cmd := exec.CommandContext(ctx, stage.Binary, stage.Args...)
	cmd.Stderr = tail
	// A forked child that inherits stderr can keep the pipe open after
	// the tool itself is killed; WaitDelay bounds that wait.
	cmd.WaitDelay = 10 * time.Second

	r.logger.Debug("running tool",
		slog.String("binary", stage.Binary),
		slog.Any("args", stage.Args))

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(tail.String()); msg != "" {
			return fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("exit status %d", exitErr.ExitCode())
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }
