package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/valkey-io/valkey-go"

	"github.com/geodex-labs/geodex/internal/lifecycle"
	"github.com/geodex-labs/geodex/pkg/models"
)

// BuildMessage is the payload enqueued for worker processing.
type BuildMessage struct {
	IndexID    int64            `json:"index_id"`
	IndexType  models.IndexType `json:"index_type"`
	DataSource string           `json:"data_source"`
	Region     string           `json:"region"`
	// Token is the serialized Running status the index must still carry
	// when a worker picks the job up.
	Token string `json:"token"`
}

// Queue enqueues build jobs on a Valkey stream for workers to pick up.
type Queue struct {
	client valkey.Client
	stream string
	logger *slog.Logger
}

func NewQueue(client valkey.Client, stream string, logger *slog.Logger) *Queue {
	return &Queue{client: client, stream: stream, logger: logger}
}

func (q *Queue) Dispatch(ctx context.Context, job lifecycle.Job) error {
	token, err := models.EncodeStatus(job.Token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	data, err := json.Marshal(BuildMessage{
		IndexID:    job.Index.ID,
		IndexType:  job.Index.IndexType,
		DataSource: job.Index.DataSource,
		Region:     job.Index.Region,
		Token:      token,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	resp := q.client.Do(ctx, q.client.B().Xadd().
		Key(q.stream).Id("*").
		FieldValue().FieldValue("data", string(data)).
		Build())
	if err := resp.Error(); err != nil {
		return fmt.Errorf("xadd: %w", err)
	}

	id, err := resp.ToString()
	if err != nil {
		return fmt.Errorf("parse xadd response: %w", err)
	}

	q.logger.Info("build enqueued",
		slog.String("id", id),
		slog.Int64("index_id", job.Index.ID))
	return nil
}

// Cancel is a no-op for queued builds. There is no cross-process signal;
// the worker re-reads the status before starting, and a stale token
// turns any late completion into a discard.
func (q *Queue) Cancel(indexID int64) {
	q.logger.Debug("cancel requested for queued build", slog.Int64("index_id", indexID))
}

// Consumer reads build jobs from the Valkey stream.
type Consumer struct {
	client     valkey.Client
	stream     string
	group      string
	consumerID string
	logger     *slog.Logger
}

func NewConsumer(client valkey.Client, stream, group, consumerID string, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, stream: stream, group: group, consumerID: consumerID, logger: logger}
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	resp := c.client.Do(ctx, c.client.B().XgroupCreate().
		Key(c.stream).Group(c.group).Id("0").Mkstream().Build())
	if err := resp.Error(); err != nil {
		// BUSYGROUP means the group already exists
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("xgroup create: %w", err)
		}
	}
	return nil
}

// Consume blocks until a message is available, processes it via handler,
// and ACKs. On startup it first drains messages left pending by a crash.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, BuildMessage) error) error {
	c.drainPending(ctx, handler)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp := c.client.Do(ctx, c.client.B().Xreadgroup().
			Group(c.group, c.consumerID).
			Count(1).Block(5000).
			Streams().Key(c.stream).Id(">").
			Build())

		if err := resp.Error(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Timeout is normal for BLOCK reads
			continue
		}

		results, err := resp.AsXRead()
		if err != nil {
			continue
		}

		for _, messages := range results {
			for _, msg := range messages {
				c.processMessage(ctx, msg, handler)
			}
		}
	}
}

// drainPending reads messages previously delivered to this consumer but
// not ACKed.
func (c *Consumer) drainPending(ctx context.Context, handler func(context.Context, BuildMessage) error) {
	resp := c.client.Do(ctx, c.client.B().Xreadgroup().
		Group(c.group, c.consumerID).
		Count(10).
		Streams().Key(c.stream).Id("0").
		Build())

	if err := resp.Error(); err != nil {
		c.logger.Warn("drain pending failed", slog.String("error", err.Error()))
		return
	}

	results, err := resp.AsXRead()
	if err != nil {
		return
	}

	for _, messages := range results {
		for _, msg := range messages {
			c.logger.Info("recovering pending build", slog.String("id", msg.ID))
			c.processMessage(ctx, msg, handler)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg valkey.XRangeEntry, handler func(context.Context, BuildMessage) error) {
	dataStr, ok := msg.FieldValues["data"]
	if !ok {
		c.logger.Warn("message missing data field", slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	var build BuildMessage
	if err := json.Unmarshal([]byte(dataStr), &build); err != nil {
		c.logger.Error("unmarshal message", slog.String("error", err.Error()), slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, build); err != nil {
		c.logger.Error("handle message", slog.String("error", err.Error()),
			slog.String("id", msg.ID),
			slog.Int64("index_id", build.IndexID))
	} else {
		c.ack(ctx, msg.ID)
	}
}

func (c *Consumer) ack(ctx context.Context, msgID string) {
	resp := c.client.Do(ctx, c.client.B().Xack().
		Key(c.stream).Group(c.group).Id(msgID).Build())
	if err := resp.Error(); err != nil {
		c.logger.Error("xack failed", slog.String("error", err.Error()), slog.String("id", msgID))
	}
}
