// Package api provides HTTP handlers for the coach sidekick API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/coach-sidekick/internal/analysis"
	"github.com/ashureev/coach-sidekick/internal/batch"
	"github.com/ashureev/coach-sidekick/internal/session"
	"github.com/ashureev/coach-sidekick/internal/store"
	"github.com/ashureev/coach-sidekick/internal/ws"
	"github.com/go-chi/chi/v5"
)

// Broadcaster pushes live session events to connected meeting views.
type Broadcaster interface {
	Broadcast(botID string, event ws.Event)
}

// Handler wires the transcript pipeline to HTTP.
type Handler struct {
	sessions    *session.Store
	repo        store.Repository
	coordinator *batch.Coordinator
	engine      *analysis.Engine
	hub         Broadcaster
}

// NewHandler creates a new Handler. engine may be nil when no LLM is
// configured; analysis endpoints then report the feature as unavailable.
func NewHandler(sessions *session.Store, repo store.Repository, coordinator *batch.Coordinator, engine *analysis.Engine, hub Broadcaster) *Handler {
	return &Handler{
		sessions:    sessions,
		repo:        repo,
		coordinator: coordinator,
		engine:      engine,
		hub:         hub,
	}
}

// RegisterRoutes mounts all pipeline routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/webhook", h.HandleWebhook)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)

		r.Route("/{botID}", func(r chi.Router) {
			r.Get("/", h.GetSessionInfo)
			r.Get("/transcript", h.GetTranscript)
			r.Post("/save", h.ForceSave)
			r.Get("/save-status", h.GetSaveStatus)
			r.Post("/analyze", h.Analyze)
			r.Get("/suggestions", h.GetSuggestions)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// broadcast pushes an event when a hub is wired.
func (h *Handler) broadcast(botID string, event ws.Event) {
	if h.hub != nil {
		h.hub.Broadcast(botID, event)
	}
}
