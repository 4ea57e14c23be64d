package handlers

import (
	"net/http"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stackvisor/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from the same origin as this endpoint.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LogStreamHandler pushes new log entries to dashboard clients over a
// websocket as they are published on the lifecycle bus.
type LogStreamHandler struct {
	bus    EventBus.Bus
	logger *zap.Logger
}

func NewLogStreamHandler(bus EventBus.Bus, logger *zap.Logger) *LogStreamHandler {
	return &LogStreamHandler{bus: bus, logger: logger}
}

func (h *LogStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Slow clients drop entries rather than stalling the bus.
	entries := make(chan models.LogEntry, 256)
	forward := func(entry models.LogEntry) {
		select {
		case entries <- entry:
		default:
		}
	}

	if err := h.bus.Subscribe(models.TopicLogEntry, forward); err != nil {
		h.logger.Error("bus subscribe failed", zap.Error(err))
		return
	}
	defer h.bus.Unsubscribe(models.TopicLogEntry, forward)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case entry := <-entries:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
