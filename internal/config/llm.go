package config

import "time"

// LLMConfig configures the model adapter. Provider selection is a
// configuration choice; swapping providers must not change callers.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	MaxRetries int `yaml:"max_retries"`
}

// DefaultLLMConfig returns the defaults for the OpenAI-compatible shape.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    "120s",
		MaxRetries: 3,
	}
}

// RequestTimeout returns the per-request timeout.
func (c LLMConfig) RequestTimeout() time.Duration {
	return parseDuration(c.Timeout, 120*time.Second)
}

// Enabled reports whether a model is configured at all. Model-assisted
// passes are skipped when it is not.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}
