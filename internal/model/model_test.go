package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsrecon/internal/config"
	"jsrecon/internal/rerr"
)

type flakyClient struct {
	failures int32
	calls    int32
	kind     rerr.Kind
}

func (f *flakyClient) Chat(_ context.Context, _ []Message, _ ChatOptions) (*Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, rerr.New(f.kind, "induced failure")
	}
	return &Response{Content: "ok"}, nil
}

func (f *flakyClient) AnalyzeImage(_ context.Context, _ string, _ string, _ bool) (string, error) {
	return "", rerr.New(f.kind, "induced failure")
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	inner := &flakyClient{failures: 2, kind: rerr.KindModelRetryable}
	c := newRetryClient(inner, 3)

	resp, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), inner.calls)
}

func TestFatalErrorsDoNotRetry(t *testing.T) {
	inner := &flakyClient{failures: 10, kind: rerr.KindModelFatal}
	c := newRetryClient(inner, 3)

	_, err := c.Chat(context.Background(), nil, ChatOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls, "fatal failures propagate immediately")
}

func TestRetryExhaustionSurfacesUnderlying(t *testing.T) {
	inner := &flakyClient{failures: 100, kind: rerr.KindModelRetryable}
	c := newRetryClient(inner, 1)

	_, err := c.Chat(context.Background(), nil, ChatOptions{})
	require.Error(t, err)
	assert.Equal(t, rerr.KindModelFatal, rerr.KindOf(err))
}

func TestOpenAIChatAgainstFakeEndpoint(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": " answer "}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
	defer srv.Close()

	cfg := config.DefaultLLMConfig()
	cfg.APIKey = "sk-unit"
	cfg.Model = "test-model"
	cfg.BaseURL = srv.URL

	c := newOpenAIClient(cfg)
	resp, err := c.Chat(context.Background(), []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "2+2?"},
	}, ChatOptions{Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content, "content is trimmed")
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, "Bearer sk-unit", gotAuth)
}

func TestOpenAIClassifiesStatusCodes(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	cfg := config.DefaultLLMConfig()
	cfg.APIKey = "k"
	cfg.BaseURL = srv.URL
	c := newOpenAIClient(cfg)

	_, err := c.Chat(context.Background(), nil, ChatOptions{})
	assert.Equal(t, rerr.KindModelRetryable, rerr.KindOf(err))

	status = http.StatusBadRequest
	_, err = c.Chat(context.Background(), nil, ChatOptions{})
	assert.Equal(t, rerr.KindModelFatal, rerr.KindOf(err))

	status = http.StatusBadGateway
	_, err = c.Chat(context.Background(), nil, ChatOptions{})
	assert.Equal(t, rerr.KindModelRetryable, rerr.KindOf(err))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := config.DefaultLLMConfig()
	cfg.APIKey = "k"
	cfg.Provider = "wat"
	_, err := New(cfg)
	assert.Error(t, err)
}
