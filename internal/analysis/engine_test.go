package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/coach-sidekick/internal/ai"
	"github.com/ashureev/coach-sidekick/internal/domain"
)

type fakeCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	block    chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeAssistant struct {
	suggestions []domain.CoachingSuggestion
	err         error
}

func (f *fakeAssistant) SupplementarySuggestions(ctx context.Context, recent, full string) ([]domain.CoachingSuggestion, error) {
	return f.suggestions, f.err
}

type fakeHistory struct {
	summary string
	err     error
}

func (f *fakeHistory) HistoricalContext(ctx context.Context, clientID string) (string, error) {
	return f.summary, f.err
}

type fakeResolver struct {
	clientID string
	err      error
}

func (f *fakeResolver) SessionClientID(ctx context.Context, botID string) (string, error) {
	return f.clientID, f.err
}

const validResponse = `{"overallScore": 8, "conversationPhase": "exploration", "suggestions": [{"suggestion": "Ask an open question", "priority": "high"}]}`

func transcriptOf(n int) []domain.TranscriptEntry {
	entries := make([]domain.TranscriptEntry, n)
	for i := range entries {
		entries[i] = domain.TranscriptEntry{Speaker: "coach", Text: "line", IsFinal: true}
	}
	return entries
}

func TestAnalyzeStoresResult(t *testing.T) {
	llm := &fakeCompleter{response: validResponse}
	e := NewEngine(llm, nil, nil, nil)

	result, err := e.Analyze(context.Background(), "bot-1", transcriptOf(4), 0)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.OverallScore != 8 {
		t.Errorf("expected score 8, got %d", result.OverallScore)
	}
	if result.LastAnalyzedTranscriptIndex != 4 {
		t.Errorf("expected watermark 4, got %d", result.LastAnalyzedTranscriptIndex)
	}

	latest, ok := e.GetLatestAnalysis("bot-1")
	if !ok || latest.AnalysisID != result.AnalysisID {
		t.Error("expected result to be stored as latest")
	}
}

func TestAnalyzeWatermarkAdvances(t *testing.T) {
	llm := &fakeCompleter{response: validResponse}
	e := NewEngine(llm, nil, nil, nil)

	first, err := e.Analyze(context.Background(), "bot-1", transcriptOf(3), 0)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	second, err := e.Analyze(context.Background(), "bot-1", transcriptOf(7), first.LastAnalyzedTranscriptIndex)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if second.LastAnalyzedTranscriptIndex != 7 {
		t.Errorf("expected watermark 7, got %d", second.LastAnalyzedTranscriptIndex)
	}

	latest, _ := e.GetLatestAnalysis("bot-1")
	if latest.LastAnalyzedTranscriptIndex != 7 {
		t.Errorf("stored watermark regressed: %d", latest.LastAnalyzedTranscriptIndex)
	}
}

func TestAnalyzeRecentWindowStartsAtWatermark(t *testing.T) {
	llm := &fakeCompleter{response: validResponse}
	e := NewEngine(llm, nil, nil, nil)

	transcript := []domain.TranscriptEntry{
		{Speaker: "coach", Text: "first", IsFinal: true},
		{Speaker: "client", Text: "second", IsFinal: true},
	}
	first, err := e.Analyze(context.Background(), "bot-1", transcript, 0)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	transcript = append(transcript,
		domain.TranscriptEntry{Speaker: "coach", Text: "third", IsFinal: true},
		domain.TranscriptEntry{Speaker: "client", Text: "fourth", IsFinal: true},
	)
	if _, err := e.Analyze(context.Background(), "bot-1", transcript, first.LastAnalyzedTranscriptIndex); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	prompt := llm.lastPrompt()
	const marker = "RECENT NEW CONVERSATION SINCE LAST ANALYSIS:\n"
	start := strings.Index(prompt, marker)
	if start < 0 {
		t.Fatalf("prompt missing recent section:\n%s", prompt)
	}
	rest := prompt[start+len(marker):]
	end := strings.Index(rest, "\n\n")
	if end < 0 {
		t.Fatal("recent section not terminated")
	}

	// The window holds exactly the entries after the first pass's
	// watermark, nothing before it.
	if got, want := rest[:end], "coach: third\nclient: fourth"; got != want {
		t.Errorf("recent window = %q, want %q", got, want)
	}
}

func TestStoreResultRefusesBackwardWatermark(t *testing.T) {
	e := NewEngine(&fakeCompleter{response: validResponse}, nil, nil, nil)

	newer := &domain.CoachingAnalysis{AnalysisID: "new", LastAnalyzedTranscriptIndex: 10, GeneratedAt: time.Now()}
	older := &domain.CoachingAnalysis{AnalysisID: "old", LastAnalyzedTranscriptIndex: 4, GeneratedAt: time.Now()}

	e.storeResult("bot-1", newer)
	e.storeResult("bot-1", older)

	latest, _ := e.GetLatestAnalysis("bot-1")
	if latest.AnalysisID != "new" {
		t.Errorf("late older pass overwrote newer result: %s", latest.AnalysisID)
	}
}

func TestAnalyzeConcurrentPassRejected(t *testing.T) {
	llm := &fakeCompleter{response: validResponse, block: make(chan struct{})}
	e := NewEngine(llm, nil, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), 0)
		done <- err
	}()

	// Wait until the first pass is inside the LLM call.
	deadline := time.After(2 * time.Second)
	for {
		llm.mu.Lock()
		started := len(llm.prompts) > 0
		llm.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first pass never reached the LLM")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), 0); !errors.Is(err, ErrAnalysisInProgress) {
		t.Errorf("expected ErrAnalysisInProgress, got %v", err)
	}

	close(llm.block)
	if err := <-done; err != nil {
		t.Errorf("first pass failed: %v", err)
	}

	// The guard clears once the pass finishes.
	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), 0); err != nil {
		t.Errorf("pass after completion failed: %v", err)
	}
}

func TestAnalyzeEmptyCompletion(t *testing.T) {
	e := NewEngine(&fakeCompleter{err: ai.ErrEmptyCompletion}, nil, nil, nil)
	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(1), 0); !errors.Is(err, ErrNoAnalysisContent) {
		t.Errorf("expected ErrNoAnalysisContent, got %v", err)
	}

	e = NewEngine(&fakeCompleter{response: ""}, nil, nil, nil)
	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(1), 0); !errors.Is(err, ErrNoAnalysisContent) {
		t.Errorf("expected ErrNoAnalysisContent for empty body, got %v", err)
	}
}

func TestAnalyzeMalformedResponseFatal(t *testing.T) {
	e := NewEngine(&fakeCompleter{response: "I cannot produce JSON today."}, nil, nil, nil)

	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(1), 0); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
	if _, ok := e.GetLatestAnalysis("bot-1"); ok {
		t.Error("failed pass must not store a result")
	}
}

func TestAnalyzeMergesAssistantSuggestions(t *testing.T) {
	assistant := &fakeAssistant{suggestions: []domain.CoachingSuggestion{{
		ID: "a1", Suggestion: "Revisit last week's commitment", Source: domain.SuggestionSourceAssistant,
	}}}
	e := NewEngine(&fakeCompleter{response: validResponse}, assistant, nil, nil)

	result, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), 0)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	llmCount, assistantCount := 0, 0
	for _, s := range result.Suggestions {
		switch s.Source {
		case domain.SuggestionSourceLLM:
			llmCount++
		case domain.SuggestionSourceAssistant:
			assistantCount++
		}
	}
	if llmCount != 1 || assistantCount != 1 {
		t.Errorf("expected 1 llm + 1 assistant suggestion, got %d and %d", llmCount, assistantCount)
	}
}

func TestAnalyzeAssistantFailureDegrades(t *testing.T) {
	assistant := &fakeAssistant{err: errors.New("assistant unreachable")}
	e := NewEngine(&fakeCompleter{response: validResponse}, assistant, nil, nil)

	result, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), 0)
	if err != nil {
		t.Fatalf("pass must not fail with assistant down: %v", err)
	}
	if len(result.Suggestions) != 1 {
		t.Errorf("expected only the llm suggestion, got %d", len(result.Suggestions))
	}
}

func TestAnalyzeIncludesHistoricalContext(t *testing.T) {
	llm := &fakeCompleter{response: validResponse}
	e := NewEngine(llm, nil, &fakeHistory{summary: "Client tends to overcommit"}, &fakeResolver{clientID: "client-7"})

	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), 0); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !strings.Contains(llm.lastPrompt(), "Client tends to overcommit") {
		t.Error("expected historical context in the prompt")
	}
}

func TestAnalyzeHistoryFailureDegrades(t *testing.T) {
	llm := &fakeCompleter{response: validResponse}
	e := NewEngine(llm, nil, &fakeHistory{err: errors.New("timeout")}, &fakeResolver{clientID: "client-7"})

	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), 0); err != nil {
		t.Fatalf("pass must not fail on history lookup: %v", err)
	}
	if strings.Contains(llm.lastPrompt(), "WHAT IS KNOWN ABOUT THIS CLIENT") {
		t.Error("expected no historical section when lookup fails")
	}
}

func TestAnalyzeClampsLastAnalyzedIndex(t *testing.T) {
	llm := &fakeCompleter{response: validResponse}
	e := NewEngine(llm, nil, nil, nil)

	// Out-of-range watermarks must not panic the slice.
	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), -5); err != nil {
		t.Errorf("negative index: %v", err)
	}
	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(2), 99); err != nil {
		t.Errorf("oversized index: %v", err)
	}
}

func TestClearAnalysis(t *testing.T) {
	e := NewEngine(&fakeCompleter{response: validResponse}, nil, nil, nil)
	if _, err := e.Analyze(context.Background(), "bot-1", transcriptOf(1), 0); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	e.ClearAnalysis("bot-1")
	if _, ok := e.GetLatestAnalysis("bot-1"); ok {
		t.Error("expected analysis cleared")
	}
}

func TestEngineCleanup(t *testing.T) {
	e := NewEngine(&fakeCompleter{response: validResponse}, nil, nil, nil)

	e.storeResult("bot-old", &domain.CoachingAnalysis{GeneratedAt: time.Now().Add(-2 * time.Hour)})
	e.storeResult("bot-new", &domain.CoachingAnalysis{GeneratedAt: time.Now()})

	if removed := e.Cleanup(time.Hour); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := e.GetLatestAnalysis("bot-old"); ok {
		t.Error("expected stale analysis evicted")
	}
	if _, ok := e.GetLatestAnalysis("bot-new"); !ok {
		t.Error("expected fresh analysis kept")
	}
}
