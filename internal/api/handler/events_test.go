package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/geodex-labs/geodex/internal/notify"
	"github.com/geodex-labs/geodex/pkg/models"
)

func newEventsServer(t *testing.T) (*httptest.Server, *notify.MemoryBus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := notify.NewMemory(notify.Topics{Prefix: "geodex.events"})
	h := NewEventsHandler(logger, bus)

	srv := httptest.NewServer(http.HandlerFunc(h.Subscribe))
	t.Cleanup(srv.Close)
	t.Cleanup(bus.Close)
	return srv, bus
}

// dialEvents connects a websocket client; the subscription is registered
// before the upgrade response goes out, so publishing after Dial returns
// is race-free.
func dialEvents(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEventsHandler_StreamsBuildEvents(t *testing.T) {
	srv, bus := newEventsServer(t)
	conn := dialEvents(t, srv, "")

	event := notify.Event{
		Type:          notify.EventBuilt,
		IndexID:       7,
		IndexType:     models.IndexTypeOSM,
		Region:        "fr",
		DocumentCount: 1234,
		At:            time.Now().UTC(),
	}
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got notify.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Type != notify.EventBuilt {
		t.Errorf("expected %s event, got %s", notify.EventBuilt, got.Type)
	}
	if got.IndexID != 7 || got.DocumentCount != 1234 {
		t.Errorf("unexpected event payload: %+v", got)
	}
}

func TestEventsHandler_TopicNarrowsStream(t *testing.T) {
	srv, bus := newEventsServer(t)
	conn := dialEvents(t, srv, "?topic=geodex.events.fr")

	ctx := context.Background()
	bus.Publish(ctx, notify.Event{Type: notify.EventFailed, IndexID: 1, Region: "de", Reason: "boom", At: time.Now()})
	bus.Publish(ctx, notify.Event{Type: notify.EventBuilt, IndexID: 2, Region: "fr", At: time.Now()})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got notify.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.IndexID != 2 || got.Region != "fr" {
		t.Errorf("expected only the fr event, got %+v", got)
	}
}
