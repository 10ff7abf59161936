// Package domain defines the core data types for live coaching sessions.
package domain

import (
	"time"
)

// Bot status values reported by the transcription provider. StatusUnknown is
// the placeholder used when a transcript webhook arrives before the session
// was explicitly initialized.
const (
	StatusUnknown   = "unknown"
	StatusCreated   = "created"
	StatusJoining   = "joining"
	StatusRecording = "in_call_recording"
	StatusDone      = "done"
	StatusFatal     = "fatal"
)

// IsTerminalStatus reports whether a bot status means the call is over and
// no further transcript events are expected.
func IsTerminalStatus(status string) bool {
	return status == StatusDone || status == StatusFatal
}

// TranscriptEntry is one speech segment from the transcription provider.
// Entries with IsFinal set will not be revised further; non-final entries
// are live-caption refinements of an in-progress utterance.
type TranscriptEntry struct {
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence *float64  `json:"confidence,omitempty"`
	IsFinal    bool      `json:"is_final"`
	StartTime  *float64  `json:"start_time,omitempty"`
	EndTime    *float64  `json:"end_time,omitempty"`
}

// BotInfo holds metadata about the transcription bot attending a meeting.
type BotInfo struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	MeetingURL string `json:"meeting_url"`
	Platform   string `json:"platform,omitempty"`
	MeetingID  string `json:"meeting_id,omitempty"`
}

// BotSession aggregates the bot metadata and the ordered live transcript for
// one coaching call.
type BotSession struct {
	Bot           BotInfo           `json:"bot"`
	Transcript    []TranscriptEntry `json:"transcript"`
	CreatedAt     time.Time         `json:"created_at"`
	LastUpdated   time.Time         `json:"last_updated"`
	WebhookEvents int               `json:"webhook_events"`
}

// SessionInfo is a monitoring projection of a live session that does not
// expose the transcript itself.
type SessionInfo struct {
	BotID           string    `json:"bot_id"`
	Status          string    `json:"status"`
	MeetingURL      string    `json:"meeting_url"`
	Platform        string    `json:"platform,omitempty"`
	TranscriptCount int       `json:"transcript_count"`
	SavedCount      int       `json:"saved_count"`
	WebhookEvents   int       `json:"webhook_events"`
	SaveInProgress  bool      `json:"save_in_progress"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
}

// SaveStatus is the batch-save bookkeeping projection for one session.
type SaveStatus struct {
	InProgress    bool      `json:"in_progress"`
	SavedCount    int       `json:"saved_count"`
	UnsavedCount  int       `json:"unsaved_count"`
	LastSaveAt    time.Time `json:"last_save_at,omitzero"`
	LastSaveError string    `json:"last_save_error,omitempty"`
}

// SessionSeed carries the data required to create a durable session record.
// The persistence layer refuses to create sessions without a meeting URL and
// an owning user.
type SessionSeed struct {
	MeetingURL string         `json:"meeting_url"`
	ClientID   string         `json:"client_id,omitempty"`
	Status     string         `json:"status,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
