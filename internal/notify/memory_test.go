package notify

import (
	"context"
	"testing"
	"time"

	"github.com/geodex-labs/geodex/pkg/models"
)

func drain(t *testing.T, sub *Subscription, n int) []Event {
	t.Helper()
	var events []Event
	for len(events) < n {
		select {
		case e, ok := <-sub.C():
			if !ok {
				t.Fatalf("subscription closed after %d events, expected %d", len(events), n)
			}
			events = append(events, e)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events, expected %d", len(events), n)
		}
	}
	return events
}

func TestMemoryBusDeliveryOrder(t *testing.T) {
	bus := NewMemory(Topics{Prefix: "geodex.events"})
	defer bus.Close()

	sub, err := bus.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		err := bus.Publish(ctx, Event{
			Type:    EventBuilt,
			IndexID: 7,
			Region:  "fr",

			DocumentCount: i,
			At:            time.Now(),
		})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	events := drain(t, sub, 3)
	for i, e := range events {
		if e.DocumentCount != int64(i+1) {
			t.Errorf("event %d out of order: count %d", i, e.DocumentCount)
		}
	}
}

func TestMemoryBusTopicFilter(t *testing.T) {
	bus := NewMemory(Topics{Prefix: "geodex.events"})
	defer bus.Close()

	fr, err := bus.Subscribe(context.Background(), "geodex.events.fr")
	if err != nil {
		t.Fatalf("subscribe fr: %v", err)
	}
	all, err := bus.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe all: %v", err)
	}

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: EventBuilt, IndexID: 1, Region: "fr", At: time.Now()})
	bus.Publish(ctx, Event{Type: EventFailed, IndexID: 2, Region: "be", Reason: "tool exited with code 1", At: time.Now()})

	got := drain(t, fr, 1)
	if got[0].Region != "fr" {
		t.Errorf("expected fr event, got %s", got[0].Region)
	}
	select {
	case e := <-fr.C():
		t.Errorf("unexpected extra event on fr topic: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	if got := drain(t, all, 2); got[1].Type != EventFailed {
		t.Errorf("expected Failed second on root topic, got %s", got[1].Type)
	}
}

func TestMemoryBusSlowSubscriberDropsNotBlocks(t *testing.T) {
	bus := NewMemory(Topics{Prefix: "geodex.events"})
	defer bus.Close()

	sub, err := bus.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Nobody reads; publishing far past the buffer must still return.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriptionBuffer*4; i++ {
			bus.Publish(context.Background(), Event{Type: EventBuilt, IndexID: int64(i), Region: "fr", At: time.Now()})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	// The buffer holds the oldest events; the rest were dropped.
	if got := len(sub.C()); got != subscriptionBuffer {
		t.Errorf("expected %d buffered events, got %d", subscriptionBuffer, got)
	}
}

func TestMemoryBusSubscriptionCloseStopsDelivery(t *testing.T) {
	bus := NewMemory(Topics{Prefix: "geodex.events"})
	defer bus.Close()

	sub, err := bus.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	sub.Close() // idempotent

	if err := bus.Publish(context.Background(), Event{Type: EventBuilt, IndexID: 1, Region: "fr", At: time.Now()}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	if _, ok := <-sub.C(); ok {
		t.Error("expected closed channel after Close")
	}
}

func TestMemoryBusContextCancelClosesSubscription(t *testing.T) {
	bus := NewMemory(Topics{Prefix: "geodex.events"})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected close, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

func TestTopicsFor(t *testing.T) {
	e := Event{Type: EventBuilt, IndexID: 42, IndexType: models.IndexTypeOSM, Region: "fr"}

	region := Topics{Prefix: "geodex.events", Granularity: "region"}
	if got := region.For(e); got != "geodex.events.fr" {
		t.Errorf("region granularity: got %s", got)
	}

	index := Topics{Prefix: "geodex.events", Granularity: "index"}
	if got := index.For(e); got != "geodex.events.index.42" {
		t.Errorf("index granularity: got %s", got)
	}
}
