// Package dispatch turns a build job into ingestion tool processes.
//
// Two dispatchers implement lifecycle.Dispatcher: Local forks the tools
// on the same host and reports completions in-process, Queue enqueues the
// job on a Valkey stream for a separate worker. Both drive the same
// Builder, which materializes the data source, runs the tool stages for
// the index type in order, and asks the search engine for a document
// count once ingestion finished.
package dispatch

import (
	"context"
	"errors"

	"github.com/geodex-labs/geodex/pkg/models"
)

var (
	// ErrUnsupportedSource means no tool stages exist for the index type.
	ErrUnsupportedSource = errors.New("unsupported source type")

	// ErrAlreadyRunning means a build for the index is already in flight
	// on this dispatcher.
	ErrAlreadyRunning = errors.New("build already running")
)

// Reporter receives build outcomes. *lifecycle.Completer satisfies it.
type Reporter interface {
	JobSucceeded(ctx context.Context, id int64, token models.Status, documentCount int64) error
	JobFailed(ctx context.Context, id int64, token models.Status, reason string) error
}

// DocumentCounter asks the search engine how many documents an index
// holds. *search.Client satisfies it.
type DocumentCounter interface {
	DocumentCount(ctx context.Context, index string) (int64, error)
}
