// Package batch decides when and how unsaved transcript entries are flushed
// to durable storage, with an at-most-one-save-in-flight guarantee per
// session.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
	"github.com/ashureev/coach-sidekick/internal/session"
	"github.com/ashureev/coach-sidekick/internal/store"
)

// ErrInProgress is the message carried by the benign skip result when a
// save for the same session is already running.
const ErrInProgress = "Save already in progress"

// ErrUnknownSession is the message carried by the skip result when no live
// session exists for the id, for example after a cleanup eviction raced a
// sweep.
const ErrUnknownSession = "session not found"

// EntryAppender is the slice of the repository the coordinator needs.
type EntryAppender interface {
	AppendEntries(ctx context.Context, botID, userID string, entries []domain.TranscriptEntry) (store.AppendResult, error)
}

// SaveResult is the outcome of one batch save. A skip (save already
// running, or nothing unsaved) is not an error; Error is a human-readable
// reason present only on skips and failures.
type SaveResult struct {
	Success    bool   `json:"success"`
	SavedCount int    `json:"saved_count"`
	TotalSaved int    `json:"total_saved,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Policy configures the sweep trigger predicate. Exact thresholds are
// deployment policy, not contract.
type Policy struct {
	EntryThreshold int           // unsaved entries that force a flush
	MaxInterval    time.Duration // max time unsaved entries may wait
	SaveTimeout    time.Duration // per-save persistence call timeout
}

// DefaultPolicy returns the default trigger policy.
func DefaultPolicy() Policy {
	return Policy{
		EntryThreshold: 10,
		MaxInterval:    time.Minute,
		SaveTimeout:    15 * time.Second,
	}
}

// Coordinator flushes unsaved transcript entries for live sessions.
type Coordinator struct {
	sessions *session.Store
	repo     EntryAppender
	policy   Policy
}

// NewCoordinator creates a batch save coordinator.
func NewCoordinator(sessions *session.Store, repo EntryAppender, policy Policy) *Coordinator {
	if policy.EntryThreshold <= 0 {
		policy.EntryThreshold = DefaultPolicy().EntryThreshold
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultPolicy().MaxInterval
	}
	if policy.SaveTimeout <= 0 {
		policy.SaveTimeout = DefaultPolicy().SaveTimeout
	}
	return &Coordinator{sessions: sessions, repo: repo, policy: policy}
}

// SaveTranscriptBatch flushes the unsaved finalized entries for one
// session. Every caller, sweep or explicit, funnels through the store's
// test-and-set guard so concurrent calls for the same bot result in exactly
// one persistence call; the rest receive the benign in-progress skip.
//
// On failure the durable high-water mark is untouched, so the next attempt
// recomputes the exact same batch with no duplication risk.
func (c *Coordinator) SaveTranscriptBatch(ctx context.Context, botID string) SaveResult {
	if !c.sessions.TryBeginSave(botID) {
		if _, ok := c.sessions.SessionInfo(botID); !ok {
			return SaveResult{Success: false, SavedCount: 0, Error: ErrUnknownSession}
		}
		return SaveResult{Success: false, SavedCount: 0, Error: ErrInProgress}
	}

	finalized := c.sessions.FinalizedTranscript(botID)
	if len(finalized) <= c.sessions.SavedCount(botID) {
		c.sessions.FinishSave(botID, 0, nil)
		return SaveResult{Success: true, SavedCount: 0}
	}

	saveCtx, cancel := context.WithTimeout(ctx, c.policy.SaveTimeout)
	defer cancel()

	result, err := c.repo.AppendEntries(saveCtx, botID, "", finalized)
	if err != nil {
		c.sessions.FinishSave(botID, 0, err)
		slog.Error("Batch save failed", "bot_id", botID, "error", err)
		return SaveResult{Success: false, SavedCount: 0, Error: err.Error()}
	}

	c.sessions.FinishSave(botID, result.TotalSaved, nil)
	return SaveResult{
		Success:    true,
		SavedCount: result.SavedCount,
		TotalSaved: result.TotalSaved,
		SessionID:  result.SessionID,
	}
}

// ForceSaveSession flushes a session immediately, for explicit "flush now"
// callers such as the session-end webhook.
func (c *Coordinator) ForceSaveSession(ctx context.Context, botID string) SaveResult {
	return c.SaveTranscriptBatch(ctx, botID)
}

// CheckAndSaveAll sweeps all live sessions and fires a save for each one
// whose trigger predicate is due. Saves run fire-and-forget so one slow
// session cannot block flushing the others; failures are logged per bot.
func (c *Coordinator) CheckAndSaveAll(ctx context.Context) {
	for _, botID := range c.sessions.AllSessionIDs() {
		if !c.sessions.ShouldTriggerSave(botID, c.policy.EntryThreshold, c.policy.MaxInterval) {
			continue
		}
		go func(id string) {
			result := c.SaveTranscriptBatch(ctx, id)
			if !result.Success && result.Error != ErrInProgress && result.Error != ErrUnknownSession {
				slog.Error("Background batch save failed", "bot_id", id, "error", result.Error)
			}
		}(botID)
	}
}

// SaveStatus returns the save bookkeeping projection for one session.
func (c *Coordinator) SaveStatus(botID string) (domain.SaveStatus, bool) {
	return c.sessions.SaveStatus(botID)
}
