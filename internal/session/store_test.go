package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
)

func entry(speaker, text string, final bool) domain.TranscriptEntry {
	return domain.TranscriptEntry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
		IsFinal:   final,
	}
}

func TestAddEntryReplacesTrailingPartial(t *testing.T) {
	s := NewStore()

	s.AddEntry("bot-1", entry("coach", "hel", false))
	s.AddEntry("bot-1", entry("coach", "hello th", false))
	s.AddEntry("bot-1", entry("coach", "hello there", false))

	transcript := s.Transcript("bot-1")
	if len(transcript) != 1 {
		t.Fatalf("expected 1 entry after partial refinements, got %d", len(transcript))
	}
	if transcript[0].Text != "hello there" {
		t.Errorf("expected latest partial text, got %q", transcript[0].Text)
	}
}

func TestAddEntryFinalizesTrailingPartial(t *testing.T) {
	s := NewStore()

	s.AddEntry("bot-1", entry("coach", "how are", false))
	s.AddEntry("bot-1", entry("coach", "how are you today", true))

	transcript := s.Transcript("bot-1")
	if len(transcript) != 1 {
		t.Fatalf("expected partial to collapse into one final entry, got %d entries", len(transcript))
	}
	if !transcript[0].IsFinal {
		t.Error("expected the surviving entry to be final")
	}
	if transcript[0].Text != "how are you today" {
		t.Errorf("expected finalized text, got %q", transcript[0].Text)
	}
}

func TestAddEntryAppendsAfterFinal(t *testing.T) {
	s := NewStore()

	s.AddEntry("bot-1", entry("coach", "welcome", true))
	s.AddEntry("bot-1", entry("client", "thanks", true))
	s.AddEntry("bot-1", entry("coach", "so tell", false))

	transcript := s.Transcript("bot-1")
	if len(transcript) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(transcript))
	}
	if transcript[2].IsFinal {
		t.Error("expected trailing entry to be non-final")
	}
}

func TestTranscriptInvariantUnderMixedStream(t *testing.T) {
	s := NewStore()

	// Interleave utterances, each delivered as partials then a final.
	for i := 0; i < 5; i++ {
		s.AddEntry("bot-1", entry("coach", "p1", false))
		s.AddEntry("bot-1", entry("coach", "p2", false))
		s.AddEntry("bot-1", entry("coach", fmt.Sprintf("utterance %d", i), true))
	}
	s.AddEntry("bot-1", entry("client", "in progr", false))

	transcript := s.Transcript("bot-1")
	if len(transcript) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(transcript))
	}
	for i := 0; i < 5; i++ {
		if !transcript[i].IsFinal {
			t.Errorf("entry %d: expected final", i)
		}
	}
	if transcript[5].IsFinal {
		t.Error("expected trailing entry to be non-final")
	}
}

func TestFinalizedTranscriptExcludesTrailingPartial(t *testing.T) {
	s := NewStore()

	s.AddEntry("bot-1", entry("coach", "one", true))
	s.AddEntry("bot-1", entry("client", "two", true))
	s.AddEntry("bot-1", entry("coach", "thr", false))

	finalized := s.FinalizedTranscript("bot-1")
	if len(finalized) != 2 {
		t.Fatalf("expected 2 finalized entries, got %d", len(finalized))
	}
	for i, e := range finalized {
		if !e.IsFinal {
			t.Errorf("finalized entry %d is not final", i)
		}
	}
}

func TestAddEntryImplicitInit(t *testing.T) {
	s := NewStore()

	s.AddEntry("bot-late", entry("coach", "hello", true))

	bs, ok := s.GetSession("bot-late")
	if !ok {
		t.Fatal("expected session to be created implicitly")
	}
	if bs.Bot.Status != domain.StatusUnknown {
		t.Errorf("expected placeholder status %q, got %q", domain.StatusUnknown, bs.Bot.Status)
	}
	if bs.Bot.MeetingURL != "#" {
		t.Errorf("expected placeholder meeting URL, got %q", bs.Bot.MeetingURL)
	}
}

func TestInitSessionPreservesTranscript(t *testing.T) {
	s := NewStore()

	s.AddEntry("bot-1", entry("coach", "early", true))
	s.InitSession("bot-1", domain.BotInfo{Status: domain.StatusRecording, MeetingURL: "https://meet.example/abc"})

	bs, _ := s.GetSession("bot-1")
	if len(bs.Transcript) != 1 {
		t.Fatalf("init must not drop existing transcript, got %d entries", len(bs.Transcript))
	}
	if bs.Bot.MeetingURL != "https://meet.example/abc" {
		t.Errorf("expected refreshed meeting URL, got %q", bs.Bot.MeetingURL)
	}
}

func TestUpdateStatusUnknownSession(t *testing.T) {
	s := NewStore()

	if s.UpdateStatus("missing", domain.StatusDone) {
		t.Error("expected false for unknown session")
	}
}

func TestTryBeginSaveExclusive(t *testing.T) {
	s := NewStore()
	s.AddEntry("bot-1", entry("coach", "a", true))

	if !s.TryBeginSave("bot-1") {
		t.Fatal("first TryBeginSave should succeed")
	}
	if s.TryBeginSave("bot-1") {
		t.Error("second TryBeginSave should fail while save is in flight")
	}

	s.FinishSave("bot-1", 1, nil)
	if !s.TryBeginSave("bot-1") {
		t.Error("TryBeginSave should succeed again after FinishSave")
	}
}

func TestTryBeginSaveUnknownSession(t *testing.T) {
	s := NewStore()
	if s.TryBeginSave("missing") {
		t.Error("expected false for unknown session")
	}
}

func TestFinishSaveRecordsOutcome(t *testing.T) {
	s := NewStore()
	s.AddEntry("bot-1", entry("coach", "a", true))
	s.AddEntry("bot-1", entry("coach", "b", true))

	s.TryBeginSave("bot-1")
	s.FinishSave("bot-1", 2, nil)

	status, ok := s.SaveStatus("bot-1")
	if !ok {
		t.Fatal("expected save status")
	}
	if status.SavedCount != 2 {
		t.Errorf("expected saved count 2, got %d", status.SavedCount)
	}
	if status.UnsavedCount != 0 {
		t.Errorf("expected 0 unsaved, got %d", status.UnsavedCount)
	}
	if status.InProgress {
		t.Error("expected in-progress flag cleared")
	}

	s.TryBeginSave("bot-1")
	s.FinishSave("bot-1", 0, errors.New("disk full"))

	status, _ = s.SaveStatus("bot-1")
	if status.LastSaveError != "disk full" {
		t.Errorf("expected recorded error, got %q", status.LastSaveError)
	}
	if status.SavedCount != 2 {
		t.Errorf("failed save must not move the high-water mark, got %d", status.SavedCount)
	}
}

func TestFinishSaveNeverMovesBackward(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.AddEntry("bot-1", entry("coach", "x", true))
	}

	s.TryBeginSave("bot-1")
	s.FinishSave("bot-1", 5, nil)
	s.TryBeginSave("bot-1")
	s.FinishSave("bot-1", 3, nil)

	if got := s.SavedCount("bot-1"); got != 5 {
		t.Errorf("high-water mark moved backward: got %d, want 5", got)
	}
}

func TestShouldTriggerSaveThreshold(t *testing.T) {
	s := NewStore()
	for i := 0; i < 10; i++ {
		s.AddEntry("bot-1", entry("coach", "x", true))
	}

	if !s.ShouldTriggerSave("bot-1", 10, time.Minute) {
		t.Error("expected trigger at entry threshold")
	}
	if s.ShouldTriggerSave("bot-1", 11, time.Minute) {
		t.Error("expected no trigger below threshold within interval")
	}
}

func TestShouldTriggerSaveMaxInterval(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.clock = func() time.Time { return now }

	s.AddEntry("bot-1", entry("coach", "x", true))

	if s.ShouldTriggerSave("bot-1", 10, time.Minute) {
		t.Error("expected no trigger right after creation")
	}

	s.clock = func() time.Time { return now.Add(61 * time.Second) }
	if !s.ShouldTriggerSave("bot-1", 10, time.Minute) {
		t.Error("expected trigger once unsaved entries age past the interval")
	}
}

func TestShouldTriggerSaveSkipsInFlight(t *testing.T) {
	s := NewStore()
	for i := 0; i < 20; i++ {
		s.AddEntry("bot-1", entry("coach", "x", true))
	}

	s.TryBeginSave("bot-1")
	if s.ShouldTriggerSave("bot-1", 10, time.Minute) {
		t.Error("expected no trigger while a save is in flight")
	}
}

func TestShouldTriggerSaveIgnoresTrailingPartial(t *testing.T) {
	s := NewStore()
	s.AddEntry("bot-1", entry("coach", "draft", false))

	if s.ShouldTriggerSave("bot-1", 1, time.Nanosecond) {
		t.Error("a lone trailing partial must not count as unsaved")
	}
}

func TestConcurrentAddAndRead(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			botID := fmt.Sprintf("bot-%d", w%2)
			for i := 0; i < 100; i++ {
				s.AddEntry(botID, entry("coach", "x", i%3 != 0))
				s.Transcript(botID)
				s.FinalizedTranscript(botID)
			}
		}(w)
	}
	wg.Wait()

	for _, id := range s.AllSessionIDs() {
		transcript := s.Transcript(id)
		for i := 0; i < len(transcript)-1; i++ {
			if !transcript[i].IsFinal {
				t.Fatalf("session %s: non-final entry at interior index %d", id, i)
			}
		}
	}
}

func TestCleanupOldSessions(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.clock = func() time.Time { return now.Add(-2 * time.Hour) }
	s.AddEntry("bot-old", entry("coach", "x", true))

	s.clock = func() time.Time { return now }
	s.AddEntry("bot-new", entry("coach", "y", true))

	removed := s.CleanupOldSessions(time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 session removed, got %d", removed)
	}
	if _, ok := s.GetSession("bot-old"); ok {
		t.Error("expected old session to be evicted")
	}
	if _, ok := s.GetSession("bot-new"); !ok {
		t.Error("expected fresh session to survive")
	}
}
