package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/geodex-labs/geodex/internal/notify"
	"github.com/geodex-labs/geodex/pkg/apierr"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect cross-origin; auth is not handled here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsHandler streams build events over a websocket.
type EventsHandler struct {
	logger *slog.Logger
	bus    notify.Bus
}

func NewEventsHandler(logger *slog.Logger, bus notify.Bus) *EventsHandler {
	return &EventsHandler{logger: logger, bus: bus}
}

// Subscribe upgrades the connection and forwards bus events until either
// side goes away. The optional topic query param narrows the stream.
// Events published before the subscription or dropped on a slow
// connection are gone for good; there is no replay.
func (h *EventsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")

	sub, err := h.bus.Subscribe(r.Context(), topic)
	if err != nil {
		writeAPIError(w, h.logger, apierr.SubscribeFailed(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		sub.Close()
		return
	}
	defer conn.Close()
	defer sub.Close()

	h.logger.Debug("event subscriber connected",
		slog.String("topic", topic),
		slog.String("remote", r.RemoteAddr))

	// Reader: only there to notice the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
