// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	OpenAI      OpenAIConfig
	Assistant   AssistantConfig
	Batch       BatchConfig
	Session     SessionConfig
}

// OpenAIConfig controls the primary analysis LLM. An empty APIKey disables
// analysis entirely; the transcript pipeline keeps running without it.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// AssistantConfig controls the secondary assistant used for historical
// client context. Both fields must be set for the assistant to be enabled.
type AssistantConfig struct {
	APIKey     string
	DomainName string
	BaseURL    string
}

// BatchConfig controls when unsaved finalized transcript entries are
// flushed to the database.
type BatchConfig struct {
	SweepInterval  time.Duration
	EntryThreshold int
	MaxInterval    time.Duration
	SaveTimeout    time.Duration
}

// SessionConfig controls eviction of idle in-memory sessions and stale
// analyses.
type SessionConfig struct {
	MaxAge          time.Duration
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/coach-sidekick.db"),
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o"),
			Timeout: getEnvDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		Assistant: AssistantConfig{
			APIKey:     getEnv("PERSONAL_AI_API_KEY", ""),
			DomainName: getEnv("PERSONAL_AI_DOMAIN_NAME", ""),
			BaseURL:    getEnv("PERSONAL_AI_BASE_URL", "https://api.personal.ai/v1"),
		},
		Batch: BatchConfig{
			SweepInterval:  getEnvDuration("BATCH_SWEEP_INTERVAL", 30*time.Second),
			EntryThreshold: getEnvInt("BATCH_ENTRY_THRESHOLD", 10),
			MaxInterval:    getEnvDuration("BATCH_MAX_INTERVAL", time.Minute),
			SaveTimeout:    getEnvDuration("BATCH_SAVE_TIMEOUT", 15*time.Second),
		},
		Session: SessionConfig{
			MaxAge:          getEnvDuration("SESSION_MAX_AGE", 24*time.Hour),
			CleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Batch.EntryThreshold <= 0 {
		return fmt.Errorf("BATCH_ENTRY_THRESHOLD must be > 0")
	}
	if c.Batch.SweepInterval <= 0 {
		return fmt.Errorf("BATCH_SWEEP_INTERVAL must be > 0")
	}
	if c.Batch.MaxInterval <= 0 {
		return fmt.Errorf("BATCH_MAX_INTERVAL must be > 0")
	}
	if c.OpenAI.APIKey != "" && c.OpenAI.Model == "" {
		return fmt.Errorf("OPENAI_MODEL cannot be empty when OPENAI_API_KEY is set")
	}
	return nil
}

// AnalysisEnabled reports whether the primary LLM is configured.
func (c *Config) AnalysisEnabled() bool {
	return c.OpenAI.APIKey != ""
}

// AssistantEnabled reports whether the secondary assistant is configured.
func (c *Config) AssistantEnabled() bool {
	return c.Assistant.APIKey != "" && c.Assistant.DomainName != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
