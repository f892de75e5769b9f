package openrouter

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

	"assistify/internal/domain"
)

const (
	DefaultURL         = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel       = "meta-llama/llama-3.3-70b-instruct:free"
	defaultTimeout     = 30 * time.Second
	defaultTemperature = 0.2
	defaultMaxTokens   = 1200
)

// chatRequest is the request shape for the chat completions endpoint.
type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openrouter: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// AuthFailure reports whether the provider rejected the credential. OpenRouter
// sometimes reports it only inside the error body.
func (e *HTTPStatusError) AuthFailure() bool {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return true
	}
	var body struct {
		Error struct {
			Code json.Number `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err != nil {
		return false
	}
	return body.Error.Code.String() == "401"
}

// Config is the generation part of the process configuration.
type Config struct {
	APIKey      string
	Model       string
	URL         string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client is a focused client for an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient fills unset fields of cfg with the OpenRouter defaults. An empty
// APIKey is accepted; Complete then fails with domain.ErrLLMNotConfigured.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends messages as one chat completion request and decodes the
// first candidate.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage) (domain.Completion, error) {
	if c.cfg.APIKey == "" {
		return domain.Completion{}, domain.ErrLLMNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openrouter: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	raw, err := c.doJSONRequest(req)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openrouter: request failed: %w", c.redact(err))
	}

	completion, err := decodeCompletion(raw)
	if err != nil {
		return domain.Completion{}, err
	}
	return completion, nil
}

func (c *Client) doJSONRequest(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        req.URL.String(),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// redact removes the API key from upstream error text, which may echo
// request headers back.
func (c *Client) redact(err error) error {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		statusErr.Body = strings.ReplaceAll(statusErr.Body, c.cfg.APIKey, "[REDACTED]")
		return statusErr
	}
	if strings.Contains(err.Error(), c.cfg.APIKey) {
		return &redactedError{msg: strings.ReplaceAll(err.Error(), c.cfg.APIKey, "[REDACTED]"), err: err}
	}
	return err
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }
