// Package notify carries build outcome events to interested parties. Delivery
// is at-most-once to currently connected subscribers; there is no replay, the
// catalog stays the source of truth after a reconnect.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/geodex-labs/geodex/pkg/models"
)

type EventType string

const (
	EventBuilt  EventType = "Built"
	EventFailed EventType = "Failed"
)

// Event is the wire envelope. DocumentCount is set on Built, Reason on
// Failed. Events for one index are published in the order their status
// transitions were persisted.
type Event struct {
	Type          EventType        `json:"event_type"`
	IndexID       int64            `json:"index_id"`
	IndexType     models.IndexType `json:"index_type"`
	Region        string           `json:"region"`
	DocumentCount int64            `json:"document_count,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	At            time.Time        `json:"at"`
}

// Topics maps events onto topic names. Granularity "index" publishes to
// <prefix>.index.<id>, anything else to <prefix>.<region>.
type Topics struct {
	Prefix      string
	Granularity string
}

func (t Topics) For(e Event) string {
	if t.Granularity == "index" {
		return fmt.Sprintf("%s.index.%d", t.Prefix, e.IndexID)
	}
	return t.Prefix + "." + e.Region
}

type Bus interface {
	Publish(ctx context.Context, event Event) error

	// Subscribe starts delivery for one topic; an empty topic receives every
	// event under the bus prefix. The subscription ends when ctx is done or
	// Close is called.
	Subscribe(ctx context.Context, topic string) (*Subscription, error)

	Close()
}

// Subscription is a live event feed. Slow consumers lose events rather than
// blocking the publisher.
type Subscription struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
	once   sync.Once
	cancel func()
}

func newSubscription(buffer int, cancel func()) *Subscription {
	return &Subscription{ch: make(chan Event, buffer), cancel: cancel}
}

func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// push hands an event to the subscriber without ever blocking. Pushes after
// finish are dropped.
func (s *Subscription) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

// finish closes the event channel. Drivers call it once delivery stopped;
// a push still in flight at that point becomes a no-op.
func (s *Subscription) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

const subscriptionBuffer = 16
