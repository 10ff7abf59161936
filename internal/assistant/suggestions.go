package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const suggestionPrompt = `You are supporting a live coaching call. Based on what you remember about this client and the conversation below, offer up to 3 short, immediately usable prompts the coach could say next. One suggestion per line, no numbering, no preamble.

RECENT CONVERSATION:
%s`

// SupplementarySuggestions asks the assistant for additional coaching
// prompts grounded in its memory of the client. The recent slice drives the
// request; the full conversation is passed as context. Suggestions are
// tagged with the historical-assistant source.
func (c *Client) SupplementarySuggestions(ctx context.Context, recentConversation, fullConversation string) ([]domain.CoachingSuggestion, error) {
	if strings.TrimSpace(recentConversation) == "" {
		return nil, nil
	}

	reply, err := c.message(ctx, fmt.Sprintf(suggestionPrompt, recentConversation), fullConversation)
	if err != nil {
		return nil, fmt.Errorf("assistant suggestions: %w", err)
	}
	if reply == "" {
		return nil, nil
	}

	now := time.Now()
	var suggestions []domain.CoachingSuggestion
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if line == "" {
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate suggestion id: %w", err)
		}
		suggestions = append(suggestions, domain.CoachingSuggestion{
			ID:         id,
			Type:       "immediate",
			Priority:   "medium",
			Category:   "historical_context",
			Suggestion: line,
			Timing:     "next_pause",
			Source:     domain.SuggestionSourceAssistant,
			Timestamp:  now,
		})
		if len(suggestions) == 3 {
			break
		}
	}
	return suggestions, nil
}

const historyPrompt = `Summarize in a short paragraph what you remember about coaching client %q from previous sessions: their goals, commitments, recurring patterns, and anything left unresolved last time. If you have no memory of this client, reply with exactly NONE.`

// HistoricalContext returns a prior-session summary for a client. Having no
// history is a normal empty result, not an error.
func (c *Client) HistoricalContext(ctx context.Context, clientID string) (string, error) {
	reply, err := c.message(ctx, fmt.Sprintf(historyPrompt, clientID), "")
	if err != nil {
		return "", fmt.Errorf("assistant history: %w", err)
	}
	if reply == "" || strings.EqualFold(reply, "NONE") {
		return "", nil
	}
	return reply, nil
}
