package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/coach-sidekick/internal/ai"
	"github.com/ashureev/coach-sidekick/internal/domain"
)

var (
	// ErrAnalysisInProgress is returned when a pass for the same bot is
	// already running; concurrent passes would race on the analysis
	// watermark.
	ErrAnalysisInProgress = errors.New("analysis already in progress")

	// ErrNoAnalysisContent is returned when the LLM answers with nothing
	// usable.
	ErrNoAnalysisContent = errors.New("no analysis content received from provider")
)

// SuggestionProvider supplies supplementary suggestions from the secondary
// assistant. Failures degrade the pass, never fail it.
type SuggestionProvider interface {
	SupplementarySuggestions(ctx context.Context, recentConversation, fullConversation string) ([]domain.CoachingSuggestion, error)
}

// HistoryProvider retrieves a prior-session summary for a client. No
// history is a normal empty result.
type HistoryProvider interface {
	HistoricalContext(ctx context.Context, clientID string) (string, error)
}

// ClientResolver looks up the client linked to a bot's durable session.
type ClientResolver interface {
	SessionClientID(ctx context.Context, botID string) (string, error)
}

// Engine runs incremental coaching-analysis passes and holds the latest
// result per bot. The assistant and history collaborators are optional;
// a nil value disables that enrichment.
type Engine struct {
	llm       ai.Completer
	assistant SuggestionProvider
	history   HistoryProvider
	clients   ClientResolver

	mu       sync.RWMutex
	analyses map[string]*domain.CoachingAnalysis
	inflight map[string]struct{}
}

// NewEngine creates an analysis engine.
func NewEngine(llm ai.Completer, assistant SuggestionProvider, history HistoryProvider, clients ClientResolver) *Engine {
	return &Engine{
		llm:       llm,
		assistant: assistant,
		history:   history,
		clients:   clients,
		analyses:  make(map[string]*domain.CoachingAnalysis),
		inflight:  make(map[string]struct{}),
	}
}

// Analyze runs one incremental pass over the session's transcript. The
// slice from lastAnalyzedIndex to the end is the new material; the full
// transcript stays in the prompt as context. The stored result's
// LastAnalyzedTranscriptIndex is the transcript length at call time, so the
// next pass's delta is exactly what arrived after this call started.
func (e *Engine) Analyze(ctx context.Context, botID string, transcript []domain.TranscriptEntry, lastAnalyzedIndex int) (*domain.CoachingAnalysis, error) {
	if !e.tryBegin(botID) {
		return nil, ErrAnalysisInProgress
	}
	defer e.finish(botID)

	if lastAnalyzedIndex < 0 {
		lastAnalyzedIndex = 0
	}
	if lastAnalyzedIndex > len(transcript) {
		lastAnalyzedIndex = len(transcript)
	}

	full := conversationText(transcript)
	recent := conversationText(transcript[lastAnalyzedIndex:])

	// The secondary assistant works on the same slices as the main pass
	// and runs alongside it; its failure degrades to zero suggestions.
	var assistantCh chan []domain.CoachingSuggestion
	if e.assistant != nil {
		assistantCh = make(chan []domain.CoachingSuggestion, 1)
		go func() {
			suggestions, err := e.assistant.SupplementarySuggestions(ctx, recent, full)
			if err != nil {
				slog.Warn("Assistant suggestions unavailable", "bot_id", botID, "error", err)
				assistantCh <- nil
				return
			}
			assistantCh <- suggestions
		}()
	}

	historicalContext := e.lookupHistory(ctx, botID)
	previous := e.latest(botID)

	prompt := buildAnalysisPrompt(full, recent, previous, historicalContext)

	content, err := e.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		if errors.Is(err, ai.ErrEmptyCompletion) {
			return nil, ErrNoAnalysisContent
		}
		return nil, fmt.Errorf("analysis completion: %w", err)
	}
	if content == "" {
		return nil, ErrNoAnalysisContent
	}

	raw, err := parseAnalysisResponse(content)
	if err != nil {
		return nil, err
	}

	result, err := normalize(botID, raw, len(transcript), time.Now())
	if err != nil {
		return nil, err
	}

	if assistantCh != nil {
		result.Suggestions = append(result.Suggestions, <-assistantCh...)
	}

	e.storeResult(botID, result)
	slog.Info("Analysis pass completed",
		"bot_id", botID,
		"analysis_id", result.AnalysisID,
		"analyzed_from", lastAnalyzedIndex,
		"transcript_length", result.LastAnalyzedTranscriptIndex,
		"suggestions", len(result.Suggestions))

	return result, nil
}

// lookupHistory fetches the prior-session summary for the client linked to
// this bot, if any. Every failure here is non-fatal: analysis degrades
// gracefully rather than blocking on optional enrichment.
func (e *Engine) lookupHistory(ctx context.Context, botID string) string {
	if e.history == nil || e.clients == nil {
		return ""
	}

	clientID, err := e.clients.SessionClientID(ctx, botID)
	if err != nil {
		slog.Warn("Client lookup failed, analyzing without history", "bot_id", botID, "error", err)
		return ""
	}
	if clientID == "" {
		return ""
	}

	summary, err := e.history.HistoricalContext(ctx, clientID)
	if err != nil {
		slog.Warn("Historical context unavailable", "bot_id", botID, "client_id", clientID, "error", err)
		return ""
	}
	return summary
}

// GetLatestAnalysis returns the most recent analysis for a bot.
func (e *Engine) GetLatestAnalysis(botID string) (*domain.CoachingAnalysis, bool) {
	a := e.latest(botID)
	if a == nil {
		return nil, false
	}
	return a, true
}

// ClearAnalysis removes the stored analysis for a bot.
func (e *Engine) ClearAnalysis(botID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.analyses, botID)
}

// Cleanup evicts analyses older than maxAge and returns how many were
// removed.
func (e *Engine) Cleanup(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for botID, a := range e.analyses {
		if a.GeneratedAt.Before(cutoff) {
			delete(e.analyses, botID)
			removed++
		}
	}
	return removed
}

func (e *Engine) tryBegin(botID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, running := e.inflight[botID]; running {
		return false
	}
	e.inflight[botID] = struct{}{}
	return true
}

func (e *Engine) finish(botID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, botID)
}

func (e *Engine) latest(botID string) *domain.CoachingAnalysis {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.analyses[botID]
}

// storeResult replaces the previous analysis. The watermark never moves
// backward even if an older pass somehow completes late.
func (e *Engine) storeResult(botID string, result *domain.CoachingAnalysis) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.analyses[botID]; ok && prev.LastAnalyzedTranscriptIndex > result.LastAnalyzedTranscriptIndex {
		return
	}
	e.analyses[botID] = result
}
