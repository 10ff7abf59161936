// Package assistant integrates the secondary assistant service that holds
// long-term client memory. It supplies supplementary coaching suggestions
// and prior-session context; both degrade gracefully when the service is
// unavailable.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMissingCredentials indicates the client was built without an API key
// or domain name.
var ErrMissingCredentials = errors.New("assistant API key and domain name are required")

// Config holds configuration for the assistant client.
type Config struct {
	APIKey     string
	DomainName string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
}

// DefaultConfig returns default assistant client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://api.personal.ai/v1",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryWait:  time.Second,
	}
}

// Client is an HTTP client for the assistant's message API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	domainName string
	baseURL    string
	maxRetries int
	retryWait  time.Duration
}

// NewClient creates an assistant client. Both credentials are required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.DomainName == "" {
		return nil, ErrMissingCredentials
	}

	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaults.RetryWait
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		domainName: cfg.DomainName,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
	}, nil
}

type messageRequest struct {
	Text       string `json:"Text"`
	DomainName string `json:"DomainName"`
	Context    string `json:"Context,omitempty"`
}

type messageResponse struct {
	AIMessage string  `json:"ai_message"`
	Score     float64 `json:"ai_score"`
}

// statusError carries the HTTP status of a failed assistant call so the
// retry loop can skip statuses that will never succeed.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("assistant returned status %d: %s", e.status, e.body)
}

// message sends one prompt to the assistant, retrying transient failures
// with exponential backoff. Authorization and not-found failures are not
// retried.
func (c *Client) message(ctx context.Context, text, msgContext string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryWait * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		reply, err := c.messageOnce(ctx, text, msgContext)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && (se.status == http.StatusForbidden || se.status == http.StatusNotFound) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) messageOnce(ctx context.Context, text, msgContext string) (string, error) {
	payload := messageRequest{
		Text:       text,
		DomainName: c.domainName,
		Context:    msgContext,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal assistant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read assistant response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var parsed messageResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode assistant response: %w", err)
	}
	return strings.TrimSpace(parsed.AIMessage), nil
}
