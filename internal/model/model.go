// Package model is the uniform adapter over chat-capable LLM
// providers. Callers see one Client interface; provider selection is a
// configuration choice. Transient failures are retried with
// exponential backoff, fatal ones propagate.
package model

import (
	"context"
	"fmt"
	"time"

	"jsrecon/internal/config"
	"jsrecon/internal/logging"
	"jsrecon/internal/rerr"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatOptions tune one call. Zero values use provider defaults.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Response is a chat completion.
type Response struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Client is the two-method surface every provider implements.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error)
	// AnalyzeImage sends a base64-encoded PNG (or a file path when
	// isFilePath) together with a text prompt.
	AnalyzeImage(ctx context.Context, image string, prompt string, isFilePath bool) (string, error)
}

// New selects and constructs the configured provider.
func New(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model API key not configured")
	}
	switch cfg.Provider {
	case "", "openai":
		return newRetryClient(newOpenAIClient(cfg), cfg.MaxRetries), nil
	case "gemini":
		inner, err := newGeminiClient(cfg)
		if err != nil {
			return nil, err
		}
		return newRetryClient(inner, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// retryClient wraps any provider with backoff on retryable failures.
type retryClient struct {
	inner      Client
	maxRetries int
}

func newRetryClient(inner Client, maxRetries int) *retryClient {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &retryClient{inner: inner, maxRetries: maxRetries}
}

func (c *retryClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	var resp *Response
	err := c.withRetry(ctx, "chat", func() error {
		var err error
		resp, err = c.inner.Chat(ctx, messages, opts)
		return err
	})
	return resp, err
}

func (c *retryClient) AnalyzeImage(ctx context.Context, image, prompt string, isFilePath bool) (string, error) {
	var out string
	err := c.withRetry(ctx, "analyzeImage", func() error {
		var err error
		out, err = c.inner.AnalyzeImage(ctx, image, prompt, isFilePath)
		return err
	})
	return out, err
}

// withRetry backs off exponentially (1s, 2s, 4s, ...) on retryable
// errors up to the attempt ceiling; fatal errors return immediately.
func (c *retryClient) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			logging.APIWarn("%s attempt %d failed, backing off %v: %v", op, attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return rerr.Wrap(rerr.KindTimeout, op+" cancelled during backoff", ctx.Err())
			case <-time.After(delay):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !rerr.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return rerr.Wrap(rerr.KindModelFatal,
		fmt.Sprintf("%s: retries exhausted after %d attempts", op, c.maxRetries+1), lastErr)
}
