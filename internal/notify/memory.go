package notify

import (
	"context"
	"sync"
)

// MemoryBus is the in-process driver. It backs tests and single-binary
// deployments where API server and executor share a process.
type MemoryBus struct {
	topics Topics

	mu   sync.RWMutex
	subs map[*Subscription]string
}

func NewMemory(topics Topics) *MemoryBus {
	return &MemoryBus{
		topics: topics,
		subs:   make(map[*Subscription]string),
	}
}

func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	topic := b.topics.For(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub, want := range b.subs {
		if want == "" || want == topic {
			sub.push(event)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(subscriptionBuffer, func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.finish()
	})

	b.mu.Lock()
	b.subs[sub] = topic
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

func (b *MemoryBus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
