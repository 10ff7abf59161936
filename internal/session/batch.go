package session

import (
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
)

// Batch-save bookkeeping. The save-in-progress flag is the sole concurrency
// guard against double-flushing a session, so setting and checking it must
// be a single atomic step under the store mutex.

// TryBeginSave atomically sets the save-in-progress flag for a session.
// It returns false when the session is unknown or a save is already running.
func (s *Store) TryBeginSave(botID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[botID]
	if !ok || state.saveInProgress {
		return false
	}
	state.saveInProgress = true
	return true
}

// FinishSave clears the save-in-progress flag and records the outcome. On
// success totalSaved aligns the in-memory high-water mark with the durable
// count reported by the persistence layer; the mark never moves backward.
func (s *Store) FinishSave(botID string, totalSaved int, saveErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[botID]
	if !ok {
		return
	}

	state.saveInProgress = false
	if saveErr != nil {
		state.lastSaveError = saveErr.Error()
		return
	}

	state.lastSaveError = ""
	state.lastSaveAt = s.clock()
	if totalSaved > state.savedCount {
		state.savedCount = totalSaved
	}
}

// SavedCount returns the in-memory view of the durable high-water mark.
func (s *Store) SavedCount(botID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[botID]
	if !ok {
		return 0
	}
	return state.savedCount
}

// SaveStatus returns the batch-save projection for a session.
func (s *Store) SaveStatus(botID string) (domain.SaveStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[botID]
	if !ok {
		return domain.SaveStatus{}, false
	}
	return domain.SaveStatus{
		InProgress:    state.saveInProgress,
		SavedCount:    state.savedCount,
		UnsavedCount:  s.unsavedLocked(state),
		LastSaveAt:    state.lastSaveAt,
		LastSaveError: state.lastSaveError,
	}, true
}

// ShouldTriggerSave is the sweep predicate: a save is due when the unsaved
// finalized entries reach entryThreshold, or when any unsaved entries have
// been waiting longer than maxInterval since the last successful save.
func (s *Store) ShouldTriggerSave(botID string, entryThreshold int, maxInterval time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[botID]
	if !ok || state.saveInProgress {
		return false
	}

	unsaved := s.unsavedLocked(state)
	if unsaved <= 0 {
		return false
	}
	if unsaved >= entryThreshold {
		return true
	}

	last := state.lastSaveAt
	if last.IsZero() {
		last = state.createdAt
	}
	return s.clock().Sub(last) >= maxInterval
}

func (s *Store) unsavedLocked(state *sessionState) int {
	n := len(state.transcript)
	if n > 0 && !state.transcript[n-1].IsFinal {
		n--
	}
	return n - state.savedCount
}
