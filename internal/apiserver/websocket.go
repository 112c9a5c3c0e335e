package apiserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/session"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local development surface; no origin restrictions.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const streamWriteTimeout = 10 * time.Second

// streamEnvelope is one message on the session stream.
type streamEnvelope struct {
	Type string           `json:"type"`
	Data models.TaskEvent `json:"data"`
}

// handleStream upgrades to WebSocket and replays the session's event
// log, then forwards live events until the client disconnects or the
// session expires.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Subscribe before replaying so no event falls between the two.
	live, cancel := h.Events().Subscribe()
	defer cancel()

	for _, event := range h.Events().Events() {
		if err := writeEnvelope(conn, event); err != nil {
			return
		}
	}

	// Drain client reads so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-live:
			if !ok {
				return
			}
			if err := writeEnvelope(conn, event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEnvelope(conn *websocket.Conn, event models.TaskEvent) error {
	envelopeType := "task_event"
	if event.EventType == "chat_response" {
		envelopeType = "chat_response"
	}
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(streamEnvelope{Type: envelopeType, Data: event})
}
