package domain

import (
	"time"
)

// SuggestionSource identifies which collaborator produced a suggestion.
type SuggestionSource string

const (
	// SuggestionSourceLLM marks suggestions parsed from the primary LLM pass.
	SuggestionSourceLLM SuggestionSource = "llm"
	// SuggestionSourceAssistant marks suggestions from the secondary
	// assistant service that blends in historical client context.
	SuggestionSourceAssistant SuggestionSource = "historical-assistant"
)

// Conversation phases recognized by the analysis pass.
const (
	PhaseOpening     = "opening"
	PhaseExploration = "exploration"
	PhaseInsight     = "insight"
	PhaseCommitment  = "commitment"
	PhaseClosing     = "closing"
)

// CoachingSuggestion is a single actionable prompt offered to the coach.
type CoachingSuggestion struct {
	ID               string           `json:"id"`
	Type             string           `json:"type"`
	Priority         string           `json:"priority"`
	Category         string           `json:"category"`
	Suggestion       string           `json:"suggestion"`
	Rationale        string           `json:"rationale,omitempty"`
	Timing           string           `json:"timing"`
	TriggeredBy      string           `json:"triggered_by,omitempty"`
	GoLiveConnection string           `json:"go_live_connection,omitempty"`
	Source           SuggestionSource `json:"source"`
	Timestamp        time.Time        `json:"timestamp"`
}

// CoachingAnalysis is the structured result of one incremental analysis
// pass. Each pass supersedes the previous one for the same bot; scores are
// on a 1-10 scale. LastAnalyzedTranscriptIndex is the transcript length at
// the time the pass started and is the slice start for the next pass.
type CoachingAnalysis struct {
	BotID                       string               `json:"bot_id"`
	AnalysisID                  string               `json:"analysis_id"`
	GeneratedAt                 time.Time            `json:"generated_at"`
	OverallScore                int                  `json:"overall_score"`
	CriteriaScores              map[string]int       `json:"criteria_scores"`
	GoLiveAlignment             map[string]int       `json:"go_live_alignment"`
	Suggestions                 []CoachingSuggestion `json:"suggestions"`
	ConversationPhase           string               `json:"conversation_phase"`
	PhaseReasoning              string               `json:"phase_reasoning,omitempty"`
	CoachEnergyLevel            int                  `json:"coach_energy_level"`
	CoachEnergyReasoning        string               `json:"coach_energy_reasoning,omitempty"`
	ClientEngagementLevel       int                  `json:"client_engagement_level"`
	ClientEngagementReasoning   string               `json:"client_engagement_reasoning,omitempty"`
	PatternsDetected            []string             `json:"patterns_detected"`
	UrgentMoments               []string             `json:"urgent_moments"`
	MetaOpportunities           []string             `json:"meta_opportunities"`
	LastAnalyzedTranscriptIndex int                  `json:"last_analyzed_transcript_index"`
}
