package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
	"github.com/ashureev/coach-sidekick/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS coaching_sessions (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		client_id TEXT,
		meeting_url TEXT NOT NULL,
		status TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON coaching_sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_client ON coaching_sessions(client_id) WHERE client_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS transcript_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		coaching_session_id TEXT NOT NULL REFERENCES coaching_sessions(id),
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		confidence REAL,
		is_final INTEGER NOT NULL,
		start_time REAL,
		end_time REAL,
		entry_index INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(coaching_session_id, entry_index)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// EnsureSession resolves or creates the durable session record for a bot.
func (s *SQLiteStore) EnsureSession(ctx context.Context, botID, userID string, seed *domain.SessionSeed) (string, error) {
	if id, err := s.lookupSession(ctx, botID, userID); err != nil {
		return "", err
	} else if id != "" {
		return id, nil
	}

	if seed == nil || seed.MeetingURL == "" || userID == "" {
		return "", ErrInsufficientSeed
	}

	status := seed.Status
	if status == "" {
		status = domain.StatusCreated
	}

	metadata := seed.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal session metadata: %w", err)
	}

	var clientID any
	if seed.ClientID != "" {
		clientID = seed.ClientID
	}

	id := uuid.NewString()
	now := time.Now().Unix()
	query := `
		INSERT INTO coaching_sessions (id, bot_id, user_id, client_id, meeting_url, status, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, id, botID, userID, clientID, seed.MeetingURL, status, string(metadataJSON), now, now); err != nil {
		return "", fmt.Errorf("insert coaching session: %w", err)
	}

	slog.Info("Coaching session created", "bot_id", botID, "session_id", id, "user_id", userID)
	return id, nil
}

// AppendEntries persists the unseen tail of the caller's finalized
// transcript. The durable entry count for the session decides the
// resumption point; entries the caller resends below that point are
// skipped, so a retried batch never duplicates rows.
func (s *SQLiteStore) AppendEntries(ctx context.Context, botID, userID string, entries []domain.TranscriptEntry) (AppendResult, error) {
	sessionID, err := s.lookupSession(ctx, botID, userID)
	if err != nil {
		return AppendResult{}, err
	}
	if sessionID == "" {
		return AppendResult{}, ErrSessionNotFound
	}

	var startingIndex int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcript_entries WHERE coaching_session_id = ?`, sessionID)
	if err := row.Scan(&startingIndex); err != nil {
		return AppendResult{}, fmt.Errorf("count durable entries: %w", err)
	}

	if startingIndex >= len(entries) {
		return AppendResult{SessionID: sessionID, SavedCount: 0, TotalSaved: startingIndex}, nil
	}
	batch := entries[startingIndex:]

	if err := s.insertEntriesWithRetry(ctx, sessionID, startingIndex, batch); err != nil {
		return AppendResult{}, fmt.Errorf("insert transcript batch: %w", err)
	}

	total := startingIndex + len(batch)

	// Metadata is advisory; the transcript rows are the durable source of
	// truth, so a metadata failure never fails the append.
	if err := s.updateSessionMetadata(ctx, sessionID, total); err != nil {
		slog.Warn("Failed to update session metadata after batch save",
			"bot_id", botID, "session_id", sessionID, "error", err)
	}

	slog.Info("Transcript batch saved",
		"bot_id", botID, "session_id", sessionID, "saved", len(batch), "total", total)

	return AppendResult{SessionID: sessionID, SavedCount: len(batch), TotalSaved: total}, nil
}

// insertEntriesWithRetry inserts a batch in one transaction, retrying with
// exponential backoff on SQLITE_BUSY conflicts.
func (s *SQLiteStore) insertEntriesWithRetry(ctx context.Context, sessionID string, startingIndex int, batch []domain.TranscriptEntry) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.insertEntriesOnce(ctx, sessionID, startingIndex, batch)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("Transcript insert hit SQLITE_BUSY, retrying",
				"session_id", sessionID, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxRetries, err)
}

func (s *SQLiteStore) insertEntriesOnce(ctx context.Context, sessionID string, startingIndex int, batch []domain.TranscriptEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcript_entries (
			coaching_session_id, speaker, text, timestamp, confidence,
			is_final, start_time, end_time, entry_index, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Warn("failed to close insert statement", "error", closeErr)
		}
	}()

	now := time.Now().Unix()
	for i, entry := range batch {
		var confidence, startTime, endTime any
		if entry.Confidence != nil {
			confidence = *entry.Confidence
		}
		if entry.StartTime != nil {
			startTime = *entry.StartTime
		}
		if entry.EndTime != nil {
			endTime = *entry.EndTime
		}

		if _, err := stmt.ExecContext(ctx,
			sessionID, entry.Speaker, entry.Text, entry.Timestamp.Unix(), confidence,
			entry.IsFinal, startTime, endTime, startingIndex+i, now,
		); err != nil {
			return fmt.Errorf("insert entry %d: %w", startingIndex+i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) updateSessionMetadata(ctx context.Context, sessionID string, total int) error {
	var metadataJSON string
	row := s.db.QueryRowContext(ctx,
		`SELECT metadata_json FROM coaching_sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&metadataJSON); err != nil {
		return fmt.Errorf("read session metadata: %w", err)
	}

	metadata := map[string]any{}
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		// Corrupt advisory blob; start fresh rather than failing.
		metadata = map[string]any{}
	}
	metadata["last_batch_save"] = time.Now().UTC().Format(time.RFC3339)
	metadata["total_transcript_entries"] = total

	updated, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE coaching_sessions SET metadata_json = ?, updated_at = ? WHERE id = ?`,
		string(updated), time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("update session metadata: %w", err)
	}
	return nil
}

// SessionClientID returns the client linked to a bot's session, or empty.
func (s *SQLiteStore) SessionClientID(ctx context.Context, botID string) (string, error) {
	var clientID sql.NullString
	row := s.db.QueryRowContext(ctx,
		`SELECT client_id FROM coaching_sessions WHERE bot_id = ?`, botID)
	err := row.Scan(&clientID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan session client: %w", err)
	}
	return clientID.String, nil
}

// UpdateStatus mirrors a bot status change onto the durable record.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, botID, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE coaching_sessions SET status = ?, updated_at = ? WHERE bot_id = ?`,
		status, time.Now().Unix(), botID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("Status update affected 0 rows", "bot_id", botID, "status", status)
	}
	return nil
}

func (s *SQLiteStore) lookupSession(ctx context.Context, botID, userID string) (string, error) {
	query := `SELECT id FROM coaching_sessions WHERE bot_id = ?`
	args := []any{botID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	return id, nil
}
