package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrMalformedResponse indicates the LLM response carried no recognizable
// JSON analysis block. Parsing failure is fatal for a pass: no partial or
// guessed analysis is returned.
var ErrMalformedResponse = errors.New("no JSON analysis found in LLM response")

// rawAnalysis mirrors the JSON shape the prompt asks the LLM to emit.
// Numeric fields are pointers so absence is distinguishable from zero and
// can be defaulted during normalization, not during parsing.
type rawAnalysis struct {
	OverallScore              *float64           `json:"overallScore"`
	CriteriaScores            map[string]float64 `json:"criteriaScores"`
	GoLiveAlignment           map[string]float64 `json:"goLiveAlignment"`
	Suggestions               []rawSuggestion    `json:"suggestions"`
	ConversationPhase         string             `json:"conversationPhase"`
	PhaseReasoning            string             `json:"phaseReasoning"`
	CoachEnergyLevel          *float64           `json:"coachEnergyLevel"`
	CoachEnergyReasoning      string             `json:"coachEnergyReasoning"`
	ClientEngagementLevel     *float64           `json:"clientEngagementLevel"`
	ClientEngagementReasoning string             `json:"clientEngagementReasoning"`
	PatternsDetected          []string           `json:"patternsDetected"`
	UrgentMoments             []string           `json:"urgentMoments"`
	MetaOpportunities         []string           `json:"metaOpportunities"`
}

type rawSuggestion struct {
	Type             string `json:"type"`
	Priority         string `json:"priority"`
	Category         string `json:"category"`
	Suggestion       string `json:"suggestion"`
	Rationale        string `json:"rationale"`
	Timing           string `json:"timing"`
	TriggeredBy      string `json:"triggeredBy"`
	GoLiveConnection string `json:"goLiveConnection"`
}

// parseAnalysisResponse extracts and decodes the JSON analysis block from
// the LLM response text, which may be wrapped in prose or code fences.
func parseAnalysisResponse(content string) (*rawAnalysis, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedResponse
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &raw, nil
}

// neutralScore is the midpoint default for absent or unparseable numeric
// fields; partial scoring is more useful to a live caller than no scoring.
const neutralScore = 5

// clampScore normalizes one score onto the 1-10 scale.
func clampScore(v *float64) int {
	if v == nil {
		return neutralScore
	}
	n := int(math.Round(*v))
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// normalize converts a parsed response into a CoachingAnalysis, defaulting
// missing fields and tagging every LLM suggestion with its source.
func normalize(botID string, raw *rawAnalysis, lastAnalyzedIndex int, now time.Time) (*domain.CoachingAnalysis, error) {
	analysisID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate analysis id: %w", err)
	}

	criteria := make(map[string]int, len(coachingCriteria))
	for key := range coachingCriteria {
		if v, ok := raw.CriteriaScores[key]; ok {
			criteria[key] = clampScore(&v)
		} else {
			criteria[key] = neutralScore
		}
	}

	alignment := make(map[string]int, len(goLiveValues))
	for key := range goLiveValues {
		if v, ok := raw.GoLiveAlignment[key]; ok {
			alignment[key] = clampScore(&v)
		} else {
			alignment[key] = neutralScore
		}
	}

	phase := raw.ConversationPhase
	if phase == "" {
		phase = domain.PhaseExploration
	}

	suggestions := make([]domain.CoachingSuggestion, 0, len(raw.Suggestions))
	for _, s := range raw.Suggestions {
		if strings.TrimSpace(s.Suggestion) == "" {
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate suggestion id: %w", err)
		}
		suggestions = append(suggestions, domain.CoachingSuggestion{
			ID:               id,
			Type:             defaultString(s.Type, "immediate"),
			Priority:         defaultString(s.Priority, "medium"),
			Category:         defaultString(s.Category, "general"),
			Suggestion:       s.Suggestion,
			Rationale:        s.Rationale,
			Timing:           defaultString(s.Timing, "now"),
			TriggeredBy:      s.TriggeredBy,
			GoLiveConnection: s.GoLiveConnection,
			Source:           domain.SuggestionSourceLLM,
			Timestamp:        now,
		})
	}

	return &domain.CoachingAnalysis{
		BotID:                       botID,
		AnalysisID:                  analysisID,
		GeneratedAt:                 now,
		OverallScore:                clampScore(raw.OverallScore),
		CriteriaScores:              criteria,
		GoLiveAlignment:             alignment,
		Suggestions:                 suggestions,
		ConversationPhase:           phase,
		PhaseReasoning:              raw.PhaseReasoning,
		CoachEnergyLevel:            clampScore(raw.CoachEnergyLevel),
		CoachEnergyReasoning:        raw.CoachEnergyReasoning,
		ClientEngagementLevel:       clampScore(raw.ClientEngagementLevel),
		ClientEngagementReasoning:   raw.ClientEngagementReasoning,
		PatternsDetected:            emptyIfNil(raw.PatternsDetected),
		UrgentMoments:               emptyIfNil(raw.UrgentMoments),
		MetaOpportunities:           emptyIfNil(raw.MetaOpportunities),
		LastAnalyzedTranscriptIndex: lastAnalyzedIndex,
	}, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
