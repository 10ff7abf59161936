package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/coach-sidekick/internal/domain"
)

// systemPrompt frames the LLM as the coach's real-time sidekick.
const systemPrompt = "You are an expert coach sidekick designed to augment a coach's intuition, presence, and performance by analyzing real-time coaching conversations. You provide timely, context-aware suggestions filtered through GO LIVE values to deepen impact, provoke vision, expand ownership, and unlock stuck moments. You are the brush, not the painter: always offer options to empower the coach's artistry."

// conversationText renders transcript entries as "Speaker: text" lines.
func conversationText(entries []domain.TranscriptEntry) string {
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(entry.Speaker)
		b.WriteString(": ")
		b.WriteString(entry.Text)
	}
	return b.String()
}

// keyedList renders a map as sorted "- key: description" lines so the
// prompt is stable across passes.
func keyedList(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", k, m[k])
	}
	return b.String()
}

// buildAnalysisPrompt assembles the bounded analysis prompt: fixed
// criteria, the full conversation, the delta since the last pass, the
// previous pass's summary fields, and the historical client context block
// when present.
func buildAnalysisPrompt(fullConversation, recentConversation string, previous *domain.CoachingAnalysis, historicalContext string) string {
	var b strings.Builder

	b.WriteString("REAL-TIME COACHING CONVERSATION ANALYSIS\n\n")
	b.WriteString("GO LIVE VALUES:\n")
	b.WriteString(keyedList(goLiveValues))
	b.WriteString("\n\nCOACHING CRITERIA TO EVALUATE (score each 1-10):\n")
	b.WriteString(keyedList(coachingCriteria))
	b.WriteString("\n\nSUGGESTION CATEGORIES:\n")
	b.WriteString(keyedList(promptCategories))

	b.WriteString("\n\nFULL CONVERSATION SO FAR:\n")
	b.WriteString(fullConversation)
	b.WriteString("\n\nRECENT NEW CONVERSATION SINCE LAST ANALYSIS:\n")
	b.WriteString(recentConversation)

	if previous != nil {
		fmt.Fprintf(&b, "\n\nPREVIOUS ANALYSIS CONTEXT:\n- Overall Score: %d/10\n- Conversation Phase: %s\n- Coach Energy: %d/10\n- Client Engagement: %d/10\n- Previous Suggestions Count: %d",
			previous.OverallScore, previous.ConversationPhase,
			previous.CoachEnergyLevel, previous.ClientEngagementLevel,
			len(previous.Suggestions))
	}

	if historicalContext != "" {
		b.WriteString("\n\nWHAT IS KNOWN ABOUT THIS CLIENT FROM PREVIOUS SESSIONS:\n")
		b.WriteString(historicalContext)
	}

	b.WriteString(`

ANALYSIS REQUIREMENTS:
1. Generate 1-4 specific, immediately usable suggestions targeting stuck moments or opportunities, each with category, rationale, and timing guidance (now/next_pause/end_of_call).
2. Score every coaching criterion 1-10 based on the full conversation.
3. Rate alignment with each GO LIVE value 1-10.
4. Identify the conversation phase (opening/exploration/insight/commitment/closing) with reasoning.
5. Rate coach energy and client engagement 1-10 with brief rationale.
6. Note detected patterns, urgent moments, and meta opportunities.

Respond with a single JSON object of this exact shape:
{
  "overallScore": 7,
  "criteriaScores": {"clear_vision": 6},
  "goLiveAlignment": {"growth": 7},
  "suggestions": [
    {"type": "immediate", "priority": "high", "category": "interrupt_loop", "suggestion": "...", "rationale": "...", "timing": "now", "triggeredBy": "...", "goLiveConnection": "ownership"}
  ],
  "conversationPhase": "exploration",
  "phaseReasoning": "...",
  "coachEnergyLevel": 7,
  "coachEnergyReasoning": "...",
  "clientEngagementLevel": 6,
  "clientEngagementReasoning": "...",
  "patternsDetected": ["..."],
  "urgentMoments": [],
  "metaOpportunities": ["..."]
}

Do not interrupt every line: only suggest when there is meaningful opportunity. If the recent conversation lacks substance, focus on scoring the existing conversation.`)

	return b.String()
}
