package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/codecrafters/internal/editor"
	"github.com/terra-clan/codecrafters/internal/models"
)

const wsPingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// AssistantMessage is one frame on the assistant channel.
// Clients send "ask" and "code"; the server sends "connected", "answer" and "error".
type AssistantMessage struct {
	Type      string           `json:"type"`
	Data      string           `json:"data,omitempty"`
	QueryType models.QueryType `json:"query_type,omitempty"`
}

// wsConn serializes writes; gorilla allows one concurrent writer
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg AssistantMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal assistant message", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send assistant message", "error", err)
		return err
	}
	return nil
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (s *Server) handleAssistantWS(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	challengeID := chi.URLParam(r, "challengeId")

	sess, err := s.editors.Get(userID, challengeID)
	if err != nil {
		respondEditorError(w, err, "failed to find editor session")
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	slog.Info("assistant websocket connected", "user_id", userID, "challenge_id", challengeID)

	conn.send(AssistantMessage{
		Type: "connected",
		Data: "Connected to the coding assistant",
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup

	// Keepalive
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					cancel()
					raw.Close()
					return
				}
			}
		}
	}()

	// Read from WebSocket -> ask the assistant
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			_, message, err := raw.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}

			var msg AssistantMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				slog.Debug("invalid message format", "error", err)
				conn.send(AssistantMessage{Type: "error", Data: "invalid message format"})
				continue
			}

			if err := s.handleAssistantMessage(ctx, conn, sess, msg); err != nil {
				return
			}
		}
	}()

	wg.Wait()
	slog.Info("assistant websocket disconnected", "user_id", userID, "challenge_id", challengeID)
}

// handleAssistantMessage answers one client frame. Only send failures are returned.
func (s *Server) handleAssistantMessage(ctx context.Context, conn *wsConn, sess *editor.Session, msg AssistantMessage) error {
	switch msg.Type {
	case "code":
		if err := sess.SetCode(msg.Data); err != nil {
			return conn.send(AssistantMessage{Type: "error", Data: err.Error()})
		}
		return nil
	case "ask":
		queryType := msg.QueryType
		if queryType == "" {
			queryType = models.QueryText
		}
		answer, err := sess.Ask(ctx, msg.Data, queryType)
		if err != nil {
			slog.Warn("assistant query failed", "error", err)
			return conn.send(AssistantMessage{Type: "error", Data: err.Error()})
		}
		return conn.send(AssistantMessage{Type: "answer", Data: answer, QueryType: queryType})
	default:
		return conn.send(AssistantMessage{Type: "error", Data: "unknown message type " + msg.Type})
	}
}
