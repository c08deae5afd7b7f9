package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// natsConnectFunc allows test injection.
var natsConnectFunc = nats.Connect

// NATSBus publishes over a NATS server, for deployments that already run one.
// Topic names map straight onto NATS subjects.
type NATSBus struct {
	conn   *nats.Conn
	topics Topics
	logger *slog.Logger
}

func NewNATS(url string, topics Topics, logger *slog.Logger) (*NATSBus, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := natsConnectFunc(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{conn: conn, topics: topics, logger: logger}, nil
}

func (b *NATSBus) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := b.topics.For(event)
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	subject := topic
	if subject == "" {
		subject = b.topics.Prefix + ".>"
	}

	sub := newSubscription(subscriptionBuffer, nil)
	natsSub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn("drop malformed event", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
			return
		}
		sub.push(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	sub.cancel = func() {
		_ = natsSub.Unsubscribe()
		sub.finish()
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

func (b *NATSBus) Close() {
	b.conn.Close()
}
