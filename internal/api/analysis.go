package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/coach-sidekick/internal/analysis"
	"github.com/ashureev/coach-sidekick/internal/domain"
	"github.com/ashureev/coach-sidekick/internal/ws"
	"github.com/go-chi/chi/v5"
)

// activeSuggestionWindow is the age past which a suggestion no longer
// counts as actionable for the only_active filter.
const activeSuggestionWindow = 5 * time.Minute

// autoAnalyzeThreshold is the number of new transcript entries since the
// last pass that lets the suggestions route trigger a fresh analysis.
const autoAnalyzeThreshold = 3

// Analyze runs one incremental analysis pass over the session transcript.
// A pass with nothing new since the last watermark is skipped and the
// previous result is returned unchanged.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		Error(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}

	botID := chi.URLParam(r, "botID")
	transcript := h.sessions.Transcript(botID)
	if transcript == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	lastIndex := 0
	if previous, ok := h.engine.GetLatestAnalysis(botID); ok {
		lastIndex = previous.LastAnalyzedTranscriptIndex
		if len(transcript) <= lastIndex {
			JSON(w, http.StatusOK, map[string]any{
				"skipped":  true,
				"reason":   "no new transcript content since last analysis",
				"analysis": previous,
			})
			return
		}
	}
	if len(transcript) == 0 {
		Error(w, http.StatusUnprocessableEntity, "transcript is empty")
		return
	}

	result, err := h.engine.Analyze(r.Context(), botID, transcript, lastIndex)
	if err != nil {
		switch {
		case errors.Is(err, analysis.ErrAnalysisInProgress):
			Error(w, http.StatusConflict, "analysis already in progress")
		case errors.Is(err, analysis.ErrNoAnalysisContent):
			Error(w, http.StatusBadGateway, "no analysis content received from provider")
		case errors.Is(err, analysis.ErrMalformedResponse):
			Error(w, http.StatusBadGateway, "analysis provider returned a malformed response")
		default:
			slog.Error("analysis pass failed", "bot_id", botID, "error", err)
			Error(w, http.StatusInternalServerError, "analysis failed")
		}
		return
	}

	h.broadcast(botID, ws.Event{
		Type:  ws.EventAnalysis,
		BotID: botID,
		Data:  result,
	})
	JSON(w, http.StatusOK, map[string]any{
		"skipped":  false,
		"analysis": result,
	})
}

// GetSuggestions returns the suggestions from the latest analysis. With
// ?only_active=true only fresh suggestions actionable right now survive;
// ?auto_analyze=true first runs a pass when enough new transcript content
// has accumulated. A ?priority= value filters on suggestion priority.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		Error(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}

	botID := chi.URLParam(r, "botID")

	if r.URL.Query().Get("auto_analyze") == "true" {
		h.maybeAutoAnalyze(r.Context(), botID)
	}

	latest, ok := h.engine.GetLatestAnalysis(botID)
	if !ok {
		Error(w, http.StatusNotFound, "no analysis available for this session")
		return
	}

	suggestions := latest.Suggestions
	if r.URL.Query().Get("only_active") == "true" {
		suggestions = activeSuggestions(suggestions, time.Now())
	}
	if priority := r.URL.Query().Get("priority"); priority != "" {
		filtered := make([]domain.CoachingSuggestion, 0, len(suggestions))
		for _, s := range suggestions {
			if s.Priority == priority {
				filtered = append(filtered, s)
			}
		}
		suggestions = filtered
	}

	JSON(w, http.StatusOK, map[string]any{
		"bot_id":      botID,
		"analysis_id": latest.AnalysisID,
		"suggestions": suggestions,
	})
}

// activeSuggestions keeps suggestions still worth surfacing mid-call: ones
// generated within the freshness window whose timing asks for action now or
// at the next pause.
func activeSuggestions(suggestions []domain.CoachingSuggestion, now time.Time) []domain.CoachingSuggestion {
	cutoff := now.Add(-activeSuggestionWindow)
	active := make([]domain.CoachingSuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		if s.Timing != "now" && s.Timing != "next_pause" {
			continue
		}
		active = append(active, s)
	}
	return active
}

// maybeAutoAnalyze runs a fresh pass when at least autoAnalyzeThreshold new
// entries arrived since the last analysis. Failures leave the previous
// analysis in place; the suggestions response degrades to it.
func (h *Handler) maybeAutoAnalyze(ctx context.Context, botID string) {
	transcript := h.sessions.Transcript(botID)
	if transcript == nil {
		return
	}

	lastIndex := 0
	if previous, ok := h.engine.GetLatestAnalysis(botID); ok {
		lastIndex = previous.LastAnalyzedTranscriptIndex
	}
	if len(transcript)-lastIndex < autoAnalyzeThreshold {
		return
	}

	result, err := h.engine.Analyze(ctx, botID, transcript, lastIndex)
	if err != nil {
		if !errors.Is(err, analysis.ErrAnalysisInProgress) {
			slog.Warn("auto analysis failed", "bot_id", botID, "error", err)
		}
		return
	}

	h.broadcast(botID, ws.Event{
		Type:  ws.EventAnalysis,
		BotID: botID,
		Data:  result,
	})
}
