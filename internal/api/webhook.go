package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
	"github.com/ashureev/coach-sidekick/internal/ws"
)

const (
	eventStatusChange        = "bot.status_change"
	eventTranscriptUpdated   = "transcript.updated"
	eventTranscriptCompleted = "transcript.completed"
)

type webhookRequest struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	BotID  string                  `json:"bot_id"`
	Status string                  `json:"status,omitempty"`
	Entry  *domain.TranscriptEntry `json:"entry,omitempty"`
}

// HandleWebhook receives bot lifecycle and transcript events from the
// recording service. Unknown event types are acknowledged and ignored so
// the sender never retries them.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Data.BotID == "" {
		Error(w, http.StatusBadRequest, "bot_id is required")
		return
	}

	switch req.Event {
	case eventStatusChange:
		h.handleStatusChange(r.Context(), req.Data)
	case eventTranscriptUpdated:
		h.handleTranscriptEntry(req.Data, false)
	case eventTranscriptCompleted:
		h.handleTranscriptEntry(req.Data, true)
	default:
		slog.Warn("ignoring unknown webhook event", "event", req.Event)
	}

	JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) handleStatusChange(ctx context.Context, data webhookData) {
	if data.Status == "" {
		slog.Warn("status change event without status", "bot_id", data.BotID)
		return
	}

	h.sessions.UpdateStatus(data.BotID, data.Status)

	// Mirror the status onto the durable record when one exists; the live
	// store stays authoritative if this fails.
	if err := h.repo.UpdateStatus(ctx, data.BotID, data.Status); err != nil {
		slog.Warn("durable status update failed", "bot_id", data.BotID, "error", err)
	}

	h.broadcast(data.BotID, ws.Event{
		Type:  ws.EventStatus,
		BotID: data.BotID,
		Data:  map[string]string{"status": data.Status},
	})

	if !domain.IsTerminalStatus(data.Status) {
		return
	}

	// Flush whatever is finalized before the session goes quiet.
	go func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		result := h.coordinator.ForceSaveSession(saveCtx, data.BotID)
		if !result.Success && result.Error != "" {
			slog.Error("final save after terminal status failed",
				"bot_id", data.BotID, "error", result.Error)
		}
	}()
}

func (h *Handler) handleTranscriptEntry(data webhookData, final bool) {
	if data.Entry == nil {
		slog.Warn("transcript event without entry", "bot_id", data.BotID)
		return
	}

	entry := *data.Entry
	entry.IsFinal = final
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	h.sessions.AddEntry(data.BotID, entry)
	h.broadcast(data.BotID, ws.Event{
		Type:  ws.EventTranscript,
		BotID: data.BotID,
		Data:  entry,
	})
}
