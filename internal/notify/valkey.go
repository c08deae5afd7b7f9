package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/valkey-io/valkey-go"
)

// ValkeyBus publishes over valkey pub/sub. This is the default driver: the
// deployment already runs valkey for the dispatch queue, so events ride the
// same server.
type ValkeyBus struct {
	client valkey.Client
	topics Topics
	logger *slog.Logger
}

func NewValkey(client valkey.Client, topics Topics, logger *slog.Logger) *ValkeyBus {
	return &ValkeyBus{client: client, topics: topics, logger: logger}
}

func (b *ValkeyBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := b.topics.For(event)
	resp := b.client.Do(ctx, b.client.B().Publish().
		Channel(topic).Message(string(data)).Build())
	if err := resp.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *ValkeyBus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(subscriptionBuffer, cancel)

	cmd := b.client.B().Subscribe().Channel(topic).Build()
	if topic == "" {
		cmd = b.client.B().Psubscribe().Pattern(b.topics.Prefix + ".*").Build()
	}

	go func() {
		defer sub.finish()
		err := b.client.Receive(subCtx, cmd, func(msg valkey.PubSubMessage) {
			var event Event
			if err := json.Unmarshal([]byte(msg.Message), &event); err != nil {
				b.logger.Warn("drop malformed event", slog.String("channel", msg.Channel), slog.String("error", err.Error()))
				return
			}
			sub.push(event)
		})
		if err != nil && subCtx.Err() == nil {
			b.logger.Error("event subscription ended", slog.String("error", err.Error()))
		}
	}()
	return sub, nil
}

func (b *ValkeyBus) Close() {}
