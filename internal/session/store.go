// Package session provides the in-memory registry of live coaching sessions
// and the merge semantics for streaming partial transcription.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
)

// sessionState is the mutable per-bot state guarded by the store mutex.
type sessionState struct {
	bot           domain.BotInfo
	transcript    []domain.TranscriptEntry
	createdAt     time.Time
	lastUpdated   time.Time
	webhookEvents int

	// Batch-save bookkeeping. savedCount mirrors the durable high-water
	// mark: the number of finalized entries already persisted.
	savedCount     int
	saveInProgress bool
	lastSaveAt     time.Time
	lastSaveError  string
}

// Store is the single source of truth for live session state. All methods
// are safe for concurrent use by webhook handlers and background sweeps.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	clock    func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*sessionState),
		clock:    time.Now,
	}
}

// InitSession creates a session with an empty transcript, or overwrites the
// bot metadata of an existing one without touching its transcript.
func (s *Store) InitSession(botID string, bot domain.BotInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	bot.ID = botID

	if existing, ok := s.sessions[botID]; ok {
		existing.bot = bot
		existing.lastUpdated = now
		slog.Debug("Session metadata refreshed", "bot_id", botID, "entries", len(existing.transcript))
		return
	}

	s.sessions[botID] = &sessionState{
		bot:         bot,
		transcript:  make([]domain.TranscriptEntry, 0),
		createdAt:   now,
		lastUpdated: now,
	}
	slog.Info("Session initialized", "bot_id", botID, "status", bot.Status)
}

// UpdateStatus updates the bot status for an existing session. It reports
// whether the session was found; a missing session is a no-op, not an error.
func (s *Store) UpdateStatus(botID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[botID]
	if !ok {
		slog.Warn("Status update for unknown session", "bot_id", botID, "status", status)
		return false
	}

	old := state.bot.Status
	state.bot.Status = status
	state.lastUpdated = s.clock()
	state.webhookEvents++
	slog.Info("Bot status updated", "bot_id", botID, "from", old, "to", status)
	return true
}

// AddEntry merges a transcript entry into the session. A session is created
// implicitly with placeholder metadata when none exists, so ingestion is
// never blocked by a late or missing init call.
//
// Merge rule: when the last stored entry is non-final, the incoming entry
// replaces it in place, whether the incoming entry is a further refinement
// or the finalization of that utterance. In every other case the entry is
// appended. The transcript is therefore always a run of finalized entries
// followed by at most one trailing non-final entry.
func (s *Store) AddEntry(botID string, entry domain.TranscriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[botID]
	if !ok {
		now := s.clock()
		state = &sessionState{
			bot: domain.BotInfo{
				ID:         botID,
				Status:     domain.StatusUnknown,
				MeetingURL: "#",
				Platform:   domain.StatusUnknown,
			},
			transcript:  make([]domain.TranscriptEntry, 0, 1),
			createdAt:   now,
			lastUpdated: now,
		}
		s.sessions[botID] = state
		slog.Info("Session implicitly initialized by transcript webhook", "bot_id", botID)
	}

	state.webhookEvents++

	if n := len(state.transcript); n > 0 && !state.transcript[n-1].IsFinal {
		state.transcript[n-1] = entry
	} else {
		state.transcript = append(state.transcript, entry)
	}

	state.lastUpdated = s.clock()
}

// GetSession returns a copy of the session aggregate for a bot.
func (s *Store) GetSession(botID string) (domain.BotSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[botID]
	if !ok {
		return domain.BotSession{}, false
	}

	transcript := make([]domain.TranscriptEntry, len(state.transcript))
	copy(transcript, state.transcript)

	return domain.BotSession{
		Bot:           state.bot,
		Transcript:    transcript,
		CreatedAt:     state.createdAt,
		LastUpdated:   state.lastUpdated,
		WebhookEvents: state.webhookEvents,
	}, true
}

// Transcript returns a copy of the full transcript for a bot.
func (s *Store) Transcript(botID string) []domain.TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[botID]
	if !ok {
		return nil
	}
	transcript := make([]domain.TranscriptEntry, len(state.transcript))
	copy(transcript, state.transcript)
	return transcript
}

// FinalizedTranscript returns a copy of the finalized prefix of the
// transcript. Only finalized entries are ever persisted; a trailing
// non-final entry is still subject to replacement and is excluded.
func (s *Store) FinalizedTranscript(botID string) []domain.TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[botID]
	if !ok {
		return nil
	}

	n := len(state.transcript)
	if n > 0 && !state.transcript[n-1].IsFinal {
		n--
	}
	finalized := make([]domain.TranscriptEntry, n)
	copy(finalized, state.transcript[:n])
	return finalized
}

// AllSessionIDs returns the ids of all live sessions.
func (s *Store) AllSessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SessionInfo returns the monitoring projection for one session.
func (s *Store) SessionInfo(botID string) (domain.SessionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[botID]
	if !ok {
		return domain.SessionInfo{}, false
	}
	return s.infoLocked(botID, state), true
}

// AllSessionsInfo returns the monitoring projection for every session.
func (s *Store) AllSessionsInfo() []domain.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]domain.SessionInfo, 0, len(s.sessions))
	for id, state := range s.sessions {
		infos = append(infos, s.infoLocked(id, state))
	}
	return infos
}

func (s *Store) infoLocked(botID string, state *sessionState) domain.SessionInfo {
	return domain.SessionInfo{
		BotID:           botID,
		Status:          state.bot.Status,
		MeetingURL:      state.bot.MeetingURL,
		Platform:        state.bot.Platform,
		TranscriptCount: len(state.transcript),
		SavedCount:      state.savedCount,
		WebhookEvents:   state.webhookEvents,
		SaveInProgress:  state.saveInProgress,
		CreatedAt:       state.createdAt,
		LastUpdated:     state.lastUpdated,
	}
}

// CleanupOldSessions removes sessions whose last update exceeds maxAge and
// returns how many were removed.
func (s *Store) CleanupOldSessions(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-maxAge)
	removed := 0
	for id, state := range s.sessions {
		if state.lastUpdated.Before(cutoff) {
			delete(s.sessions, id)
			removed++
			slog.Info("Cleaned up old session", "bot_id", id, "last_updated", state.lastUpdated)
		}
	}
	return removed
}
