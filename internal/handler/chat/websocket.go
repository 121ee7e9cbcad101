package chat

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/usecase"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

const (
	inboundMessageType = "message"
	inboundResetType   = "reset"
)

// handleWebSocket carries the same turn events as handleSubmit over one long-lived connection.
// The session is looked up again for every inbound frame so the connection follows idle eviction.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := h.openSession(w, r)
	if !ok {
		return
	}
	ref := h.sessionRef(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if err := writeEvent(conn, "session", snapshot(session)); err != nil {
		return
	}
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", "session", ref.StorageKey(), "error", err)
			}
			return
		}

		session, err = h.sessions.Open(r.Context(), ref)
		if err != nil {
			logger.Error("failed to open session", "session", ref.StorageKey(), "error", err)
			if err = writeEvent(conn, "error", map[string]any{"error": "failed to open session"}); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case inboundMessageType:
			err = h.streamTurn(r, conn, session, msg.Text)
		case inboundResetType:
			if resetErr := session.Reset(r.Context()); resetErr != nil {
				err = writeEvent(conn, "error", map[string]any{"error": resetErr.Error()})
			} else {
				err = writeEvent(conn, "session", snapshot(session))
			}
		default:
			err = writeEvent(conn, "error", map[string]any{"error": "unknown message type"})
		}
		if err != nil {
			logger.Debug("websocket write failed", "session", session.Key(), "error", err)
			return
		}
	}
}

func (h *Handler) streamTurn(r *http.Request, conn *websocket.Conn, session *usecase.Session, text string) error {
	updates, err := session.Submit(r.Context(), text)
	if err != nil {
		status, body := rejection(h.cfg, session, err)
		body["status"] = status
		return writeEvent(conn, "error", body)
	}

	transcript := session.Transcript()
	var writeErr error
	if writeErr = writeEvent(conn, "start", map[string]any{"messages": transcript[len(transcript)-2:]}); writeErr != nil {
		return drainAfter(updates, writeErr)
	}
	for update := range updates {
		event := "progress"
		if update.Done {
			event = "message"
		}
		if writeErr = writeEvent(conn, event, update.Message); writeErr != nil {
			return drainAfter(updates, writeErr)
		}
	}
	return writeEvent(conn, "end", map[string]any{"usage": session.Usage()})
}

// drainAfter consumes the rest of a turn so it can finish after the connection broke.
func drainAfter(updates <-chan usecase.TurnUpdate, err error) error {
	for range updates {
	}
	return err
}

func writeEvent(conn *websocket.Conn, event string, data interface{}) error {
	return conn.WriteJSON(
		outgoingMessage{
			Type:      event,
			Data:      data,
			Timestamp: time.Now().UnixMilli(),
		},
	)
}
