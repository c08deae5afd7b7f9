package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestExecRunnerSuccess(t *testing.T) {
	bin := writeScript(t, "ok.sh", "exit 0\n")
	r := NewExecRunner(discardLogger())

	err := r.Run(context.Background(), Stage{Name: "ok", Binary: bin})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestExecRunnerFailureCarriesStderrTail(t *testing.T) {
	bin := writeScript(t, "fail.sh", `echo "parse error at line 3" >&2
exit 3
`)
	r := NewExecRunner(discardLogger())

	err := r.Run(context.Background(), Stage{Name: "fail", Binary: bin})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("expected exit status in error, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "parse error at line 3") {
		t.Errorf("expected stderr tail in error, got %q", err.Error())
	}
}

func TestExecRunnerContextCancelKillsTool(t *testing.T) {
	bin := writeScript(t, "slow.sh", "exec sleep 10\n")
	r := NewExecRunner(discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, Stage{Name: "slow", Binary: bin})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("tool was not killed promptly, took %s", elapsed)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	b := &tailBuffer{limit: 8}

	for _, chunk := range []string{"aaaa", "bbbb", "cccc"} {
		if _, err := b.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if got := b.String(); got != "bbbbcccc" {
		t.Errorf("expected tail bbbbcccc, got %q", got)
	}
}
