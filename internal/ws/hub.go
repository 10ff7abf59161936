// Package ws pushes live session events to connected meeting views over
// WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Event is one live update pushed to subscribers of a bot's session.
type Event struct {
	Type  string `json:"type"`
	BotID string `json:"bot_id"`
	Data  any    `json:"data,omitempty"`
}

// Event types pushed by the pipeline.
const (
	EventTranscript = "transcript"
	EventStatus     = "status"
	EventAnalysis   = "analysis"
)

const writeTimeout = 5 * time.Second

// Hub tracks WebSocket subscribers per bot and fans events out to them.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*websocket.Conn]struct{})}
}

// Subscribe registers a connection for a bot's events.
func (h *Hub) Subscribe(botID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[botID]; !ok {
		h.subs[botID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[botID][conn] = struct{}{}
	slog.Info("Meeting subscriber connected", "bot_id", botID, "subscribers", len(h.subs[botID]))
}

// Unsubscribe removes a connection for a bot's events.
func (h *Hub) Unsubscribe(botID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.subs[botID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, botID)
		}
	}
}

// SubscriberCount returns the number of live subscribers for a bot.
func (h *Hub) SubscriberCount(botID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[botID])
}

// Broadcast pushes an event to every subscriber of the bot. Connections
// that fail to accept the write are dropped; a dead client must never
// block webhook ingestion.
func (h *Hub) Broadcast(botID string, event Event) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[botID]))
	for conn := range h.subs[botID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to encode broadcast event", "bot_id", botID, "type", event.Type, "error", err)
		return
	}

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("Dropping unresponsive meeting subscriber", "bot_id", botID, "error", err)
			_ = conn.Close(websocket.StatusPolicyViolation, "write failed")
			h.Unsubscribe(botID, conn)
		}
	}
}
