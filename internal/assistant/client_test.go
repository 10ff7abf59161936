package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/coach-sidekick/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		APIKey:     "test-key",
		DomainName: "coach-memory",
		BaseURL:    srv.URL,
		RetryWait:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func reply(text string) map[string]any {
	return map[string]any{"ai_message": text, "ai_score": 0.9}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k"}); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials without domain, got %v", err)
	}
	if _, err := NewClient(Config{DomainName: "d"}); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials without key, got %v", err)
	}
}

func TestMessageSendsAPIKeyAndDomain(t *testing.T) {
	var gotKey string
	var gotReq messageRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(reply("remembered context"))
	})

	got, err := client.message(context.Background(), "hello", "ctx")
	if err != nil {
		t.Fatalf("message failed: %v", err)
	}
	if got != "remembered context" {
		t.Errorf("unexpected reply %q", got)
	}
	if gotKey != "test-key" {
		t.Errorf("expected x-api-key header, got %q", gotKey)
	}
	if gotReq.DomainName != "coach-memory" {
		t.Errorf("expected domain in payload, got %q", gotReq.DomainName)
	}
}

func TestMessageRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(reply("eventually"))
	})

	got, err := client.message(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got != "eventually" {
		t.Errorf("unexpected reply %q", got)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestMessageDoesNotRetryForbidden(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	if _, err := client.message(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("403 must not be retried, got %d attempts", calls.Load())
	}
}

func TestSupplementarySuggestionsParsesLines(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(reply("- Ask about the launch deadline\n\n* Reference their energy goal\nInvite a commitment\nA fourth that is dropped"))
	})

	suggestions, err := client.SupplementarySuggestions(context.Background(), "Coach: hi", "Coach: hi")
	if err != nil {
		t.Fatalf("suggestions failed: %v", err)
	}
	if len(suggestions) != 3 {
		t.Fatalf("expected cap of 3 suggestions, got %d", len(suggestions))
	}
	if suggestions[0].Suggestion != "Ask about the launch deadline" {
		t.Errorf("expected bullet stripped, got %q", suggestions[0].Suggestion)
	}
	for i, s := range suggestions {
		if s.Source != domain.SuggestionSourceAssistant {
			t.Errorf("suggestion %d: expected assistant source, got %q", i, s.Source)
		}
		if s.Category != "historical_context" {
			t.Errorf("suggestion %d: expected historical_context category, got %q", i, s.Category)
		}
		if s.ID == "" {
			t.Errorf("suggestion %d: missing id", i)
		}
	}
}

func TestSupplementarySuggestionsEmptyConversation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty conversation")
	})

	suggestions, err := client.SupplementarySuggestions(context.Background(), "   ", "full")
	if err != nil || suggestions != nil {
		t.Errorf("expected nil, nil for empty recent conversation, got %v, %v", suggestions, err)
	}
}

func TestHistoricalContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(reply("They committed to a launch date last week."))
	})

	summary, err := client.HistoricalContext(context.Background(), "client-7")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if summary != "They committed to a launch date last week." {
		t.Errorf("unexpected summary %q", summary)
	}
}

func TestHistoricalContextNone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(reply("NONE"))
	})

	summary, err := client.HistoricalContext(context.Background(), "client-new")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if summary != "" {
		t.Errorf("expected empty summary for NONE, got %q", summary)
	}
}
