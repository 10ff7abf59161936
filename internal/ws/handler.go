package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Handler upgrades meeting-view connections and keeps them subscribed to a
// bot's live events until the client goes away.
type Handler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket handler for live meeting updates.
func NewHandler(hub *Hub, allowedOrigin string, isDev bool) *Handler {
	return &Handler{hub: hub, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade at
// /ws/meetings?bot_id=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("bot_id")
	if botID == "" {
		http.Error(w, "bot_id is required", http.StatusBadRequest)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.isDev,
	})
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "bot_id", botID, "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "session ended")
	}()

	h.hub.Subscribe(botID, conn)
	defer h.hub.Unsubscribe(botID, conn)

	// Subscribers are read-only; drain the connection until it closes so
	// pings and client disconnects are handled.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Debug("Meeting subscriber read error", "bot_id", botID, "error", err)
			}
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || strings.EqualFold(origin, h.allowedOrigin)
}
