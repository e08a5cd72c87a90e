package model

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"google.golang.org/genai"

	"jsrecon/internal/config"
	"jsrecon/internal/rerr"
)

// geminiClient drives the Gemini API through the genai SDK.
type geminiClient struct {
	client *genai.Client
	model  string
}

func newGeminiClient(cfg config.LLMConfig) (*geminiClient, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, rerr.Wrap(rerr.KindModelFatal, "create genai client", err)
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	return &geminiClient{client: client, model: modelName}, nil
}

func (c *geminiClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, classifyGeminiErr(err)
	}

	out := &Response{Content: strings.TrimSpace(resp.Text())}
	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func (c *geminiClient) AnalyzeImage(ctx context.Context, image, prompt string, isFilePath bool) (string, error) {
	var raw []byte
	if isFilePath {
		data, err := os.ReadFile(image)
		if err != nil {
			return "", rerr.Wrap(rerr.KindModelFatal, "read image file", err)
		}
		raw = data
	} else {
		data, err := base64.StdEncoding.DecodeString(image)
		if err != nil {
			return "", rerr.Wrap(rerr.KindModelFatal, "decode base64 image", err)
		}
		raw = data
	}

	content := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: raw}},
		},
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{content}, nil)
	if err != nil {
		return "", classifyGeminiErr(err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// classifyGeminiErr sorts SDK failures into the retryable/fatal kinds.
func classifyGeminiErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		strings.Contains(msg, "deadline"),
		strings.Contains(msg, "UNAVAILABLE"),
		strings.Contains(msg, "connection"):
		return rerr.Wrap(rerr.KindModelRetryable, "gemini call failed", err)
	default:
		return rerr.Wrap(rerr.KindModelFatal, "gemini call failed", err)
	}
}
