package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port, got %q", cfg.Port)
	}
	if cfg.Batch.EntryThreshold != 10 {
		t.Errorf("expected default entry threshold 10, got %d", cfg.Batch.EntryThreshold)
	}
	if cfg.Batch.MaxInterval != time.Minute {
		t.Errorf("expected default max interval 1m, got %v", cfg.Batch.MaxInterval)
	}
	if cfg.Session.MaxAge != 24*time.Hour {
		t.Errorf("expected default session max age 24h, got %v", cfg.Session.MaxAge)
	}
	if cfg.AnalysisEnabled() {
		t.Error("analysis must be disabled without an API key")
	}
	if cfg.AssistantEnabled() {
		t.Error("assistant must be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BATCH_ENTRY_THRESHOLD", "5")
	t.Setenv("BATCH_MAX_INTERVAL", "30s")
	t.Setenv("PERSONAL_AI_API_KEY", "pk-test")
	t.Setenv("PERSONAL_AI_DOMAIN_NAME", "coach-memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port override, got %q", cfg.Port)
	}
	if cfg.Batch.EntryThreshold != 5 {
		t.Errorf("expected threshold override, got %d", cfg.Batch.EntryThreshold)
	}
	if cfg.Batch.MaxInterval != 30*time.Second {
		t.Errorf("expected interval override, got %v", cfg.Batch.MaxInterval)
	}
	if !cfg.AnalysisEnabled() || !cfg.AssistantEnabled() {
		t.Error("expected analysis and assistant enabled")
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("BATCH_MAX_INTERVAL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Batch.MaxInterval != time.Minute {
		t.Errorf("expected fallback to default, got %v", cfg.Batch.MaxInterval)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: "8080", DBPath: "./x.db"}
	cfg.Batch.EntryThreshold = 10
	cfg.Batch.SweepInterval = time.Second
	cfg.Batch.MaxInterval = time.Minute
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Port = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty port")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{FrontendURL: ""}
	if !cfg.IsDevelopment() {
		t.Error("empty frontend URL is development")
	}
	cfg.FrontendURL = "http://localhost:3000"
	if !cfg.IsDevelopment() {
		t.Error("localhost is development")
	}
	cfg.FrontendURL = "https://app.example.com"
	if cfg.IsDevelopment() {
		t.Error("production URL is not development")
	}
}
