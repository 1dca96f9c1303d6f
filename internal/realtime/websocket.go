package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// WebSocketHandler upgrades HTTP requests into registered hub connections.
type WebSocketHandler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsSocket adapts websocket.Conn to the hub's Socket interface.
type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) WriteText(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsSocket) Close(reason string) error {
	return s.conn.Close(websocket.StatusNormalClosure, reason)
}

// inboundMessage is the client-to-server wire format.
type inboundMessage struct {
	Type       string `json:"type"`
	ProfileID  string `json:"profile_id,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	sock := &wsSocket{conn: ws}
	client := h.hub.Registry().Register(sock)
	defer func() {
		h.hub.Registry().Unregister(client.ID)
		if closeErr := sock.Close("connection ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "connection_id", client.ID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.hub.SendTo(ctx, client.ID, Envelope{
		Type:      TypeConnectionEstablished,
		Data:      map[string]string{"connection_id": client.ID},
		Timestamp: time.Now().UTC(),
	})

	h.readLoop(ctx, ws, client)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop dispatches inbound messages until the connection closes.
// Malformed payloads and unknown types are logged and ignored; they must
// never bring down the connection.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, client *Client) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "connection_id", client.ID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "connection_id", client.ID)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("Malformed inbound message ignored", "connection_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case TypeSubscribeAssessment:
			h.hub.Registry().Subscribe(client.ID, msg.ProfileID, msg.WorkflowID)
			slog.Info("Connection subscribed to assessment",
				"connection_id", client.ID, "profile_id", msg.ProfileID, "workflow_id", msg.WorkflowID)
		case TypePing:
			now := time.Now().UTC()
			h.hub.Registry().Touch(client.ID, now)
			h.hub.SendTo(ctx, client.ID, Envelope{
				Type:      TypePing,
				Data:      map[string]string{"server_time": now.Format(time.RFC3339)},
				Timestamp: now,
			})
		case TypeGetDashboardUpdate:
			h.hub.DashboardUpdate(ctx, client.ID)
		default:
			slog.Warn("Unrecognized message type ignored",
				"connection_id", client.ID, "type", msg.Type)
		}
	}
}
