package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"jsrecon/internal/config"
	"jsrecon/internal/logging"
	"jsrecon/internal/rerr"
)

// minRequestSpacing rate-limits consecutive calls to one provider.
const minRequestSpacing = 500 * time.Millisecond

// openAIClient speaks the OpenAI-compatible chat-completions shape.
// Any endpoint exposing that shape works through base_url.
type openAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

func newOpenAIClient(cfg config.LLMConfig) *openAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &openAIClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout(),
		},
	}
}

type oaMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type oaContentPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *oaImageURL `json:"image_url,omitempty"`
}

type oaImageURL struct {
	URL string `json:"url"`
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *openAIClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	oaMessages := make([]oaMessage, 0, len(messages))
	for _, m := range messages {
		oaMessages = append(oaMessages, oaMessage{Role: m.Role, Content: m.Content})
	}
	return c.complete(ctx, oaMessages, opts)
}

func (c *openAIClient) AnalyzeImage(ctx context.Context, image, prompt string, isFilePath bool) (string, error) {
	b64 := image
	if isFilePath {
		data, err := os.ReadFile(image)
		if err != nil {
			return "", rerr.Wrap(rerr.KindModelFatal, "read image file", err)
		}
		b64 = base64.StdEncoding.EncodeToString(data)
	}

	msg := oaMessage{
		Role: "user",
		Content: []oaContentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &oaImageURL{URL: "data:image/png;base64," + b64}},
		},
	}
	resp, err := c.complete(ctx, []oaMessage{msg}, ChatOptions{})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *openAIClient) complete(ctx context.Context, messages []oaMessage, opts ChatOptions) (*Response, error) {
	// Keep at least minRequestSpacing between consecutive requests.
	c.mu.Lock()
	if elapsed := time.Since(c.lastRequest); elapsed < minRequestSpacing {
		time.Sleep(minRequestSpacing - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := oaRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindModelFatal, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, rerr.Wrap(rerr.KindModelFatal, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, rerr.Wrap(rerr.KindTimeout, "chat request", err)
		}
		return nil, rerr.Wrap(rerr.KindModelRetryable, "chat request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindModelRetryable, "read response", err)
	}
	logging.APIDebug("chat completion: status=%d latency=%v bytes=%d", resp.StatusCode, time.Since(start), len(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, rerr.New(rerr.KindModelRetryable, "rate limit exceeded (429)")
	case resp.StatusCode >= 500:
		return nil, rerr.New(rerr.KindModelRetryable, fmt.Sprintf("server error (%d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, rerr.New(rerr.KindModelFatal,
			fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, truncateBody(body)))
	}

	var parsed oaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, rerr.Wrap(rerr.KindModelFatal, "parse response", err)
	}
	if parsed.Error != nil {
		return nil, rerr.New(rerr.KindModelFatal, "API error: "+parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, rerr.New(rerr.KindModelFatal, "no completion returned")
	}

	return &Response{
		Content: strings.TrimSpace(parsed.Choices[0].Message.Content),
		Usage: &Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

func truncateBody(body []byte) string {
	if len(body) > 512 {
		return string(body[:512]) + "..."
	}
	return string(body)
}
