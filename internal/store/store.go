// Package store provides durable persistence for coaching sessions and
// their transcripts.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/coach-sidekick/internal/domain"
)

var (
	// ErrSessionNotFound is returned by AppendEntries when no durable
	// session exists for the bot; the caller must ensure one first.
	ErrSessionNotFound = errors.New("coaching session not found")

	// ErrInsufficientSeed is returned by EnsureSession when the session
	// does not exist and the seed lacks a meeting URL or an owning user.
	// The adapter never invents ownership.
	ErrInsufficientSeed = errors.New("session does not exist and insufficient data to create one")
)

// AppendResult reports the outcome of a transcript batch append.
type AppendResult struct {
	SessionID  string
	SavedCount int
	TotalSaved int
}

// Repository is the durable-storage gateway for the transcript pipeline.
type Repository interface {
	// EnsureSession resolves the durable session for a bot, creating it
	// from the seed when absent. A non-empty userID scopes the lookup to
	// that owner and is required for creation.
	EnsureSession(ctx context.Context, botID, userID string, seed *domain.SessionSeed) (string, error)

	// AppendEntries persists the unseen tail of the caller's full
	// finalized transcript. The durable entry count, not the caller,
	// decides the resumption point, so the append is exactly-once and
	// idempotent. Entry indexes are assigned server-side, contiguous per
	// session.
	AppendEntries(ctx context.Context, botID, userID string, entries []domain.TranscriptEntry) (AppendResult, error)

	// SessionClientID returns the client linked to a bot's session, or
	// empty when no session exists or no client is linked.
	SessionClientID(ctx context.Context, botID string) (string, error)

	// UpdateStatus mirrors a bot status change onto the durable record.
	UpdateStatus(ctx context.Context, botID, status string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
