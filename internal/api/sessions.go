package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/coach-sidekick/internal/domain"
	"github.com/ashureev/coach-sidekick/internal/store"
	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	BotID      string         `json:"bot_id"`
	UserID     string         `json:"user_id"`
	MeetingURL string         `json:"meeting_url"`
	ClientID   string         `json:"client_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CreateSession bootstraps a coaching session before the first webhook
// arrives, so durable rows carry the real meeting URL and owner instead of
// placeholder values.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BotID == "" {
		Error(w, http.StatusBadRequest, "bot_id is required")
		return
	}
	if req.MeetingURL == "" {
		Error(w, http.StatusBadRequest, "meeting_url is required")
		return
	}

	h.sessions.InitSession(req.BotID, domain.BotInfo{
		Status:     domain.StatusCreated,
		MeetingURL: req.MeetingURL,
	})

	seed := &domain.SessionSeed{
		MeetingURL: req.MeetingURL,
		ClientID:   req.ClientID,
		Status:     domain.StatusCreated,
		Metadata:   req.Metadata,
	}
	sessionID, err := h.repo.EnsureSession(r.Context(), req.BotID, req.UserID, seed)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientSeed) {
			Error(w, http.StatusBadRequest, "user_id is required to create a session")
			return
		}
		slog.Error("failed to create durable session", "bot_id", req.BotID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	JSON(w, http.StatusCreated, map[string]string{
		"session_id": sessionID,
		"bot_id":     req.BotID,
	})
}

// ListSessions returns summary info for every in-memory session.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"sessions": h.sessions.AllSessionsInfo(),
	})
}

// GetSessionInfo returns a single session summary.
func (h *Handler) GetSessionInfo(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")

	info, ok := h.sessions.SessionInfo(botID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, info)
}

// GetTranscript returns the current merged transcript for a session.
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")

	bs, ok := h.sessions.GetSession(botID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"bot_id":     botID,
		"status":     bs.Bot.Status,
		"transcript": bs.Transcript,
	})
}

// ForceSave persists all unsaved finalized entries immediately, bypassing
// the batch thresholds.
func (h *Handler) ForceSave(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")

	if _, ok := h.sessions.GetSession(botID); !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	result := h.coordinator.ForceSaveSession(r.Context(), botID)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	JSON(w, status, result)
}

// GetSaveStatus reports batch bookkeeping for a session.
func (h *Handler) GetSaveStatus(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")

	status, ok := h.coordinator.SaveStatus(botID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, status)
}
