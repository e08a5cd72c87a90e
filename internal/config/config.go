package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"jsrecon/internal/logging"
)

// Config holds all jsrecon configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Browser   BrowserConfig   `yaml:"browser"`
	Collector CollectorConfig `yaml:"collector"`
	Cache     CacheConfig     `yaml:"cache"`
	Compress  CompressConfig  `yaml:"compress"`
	LLM       LLMConfig       `yaml:"llm"`
	Budget    BudgetConfig    `yaml:"budget"`
	Debugger  DebuggerConfig  `yaml:"debugger"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "jsrecon",
		Version: "1.0.0",

		Browser:   DefaultBrowserConfig(),
		Collector: DefaultCollectorConfig(),
		Cache:     DefaultCacheConfig(),
		Compress:  DefaultCompressConfig(),
		LLM:       DefaultLLMConfig(),
		Budget:    DefaultBudgetConfig(),
		Debugger:  DefaultDebuggerConfig(),

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, applying defaults for any field
// not present. A missing file yields the defaults. API keys may be
// supplied via environment instead of the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets from the environment. The file is for
// shape; keys should not live in it.
func (c *Config) applyEnv() {
	if v := os.Getenv("JSRECON_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = v
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Collector.MaxFilesPerCollect < 1 {
		return fmt.Errorf("collector.max_files_per_collect must be >= 1")
	}
	if c.Collector.MaxSingleFileSize < 1024 {
		return fmt.Errorf("collector.max_single_file_size must be >= 1024")
	}
	if c.Cache.MemoryTTL().Seconds() > c.Cache.DiskTTL().Seconds() {
		return fmt.Errorf("cache.memory_ttl must not exceed cache.disk_ttl")
	}
	if c.Compress.BatchConcurrency < 1 {
		return fmt.Errorf("compress.batch_concurrency must be >= 1")
	}
	for _, f := range c.Budget.WarnFractions {
		if f <= 0 || f >= 1 {
			return fmt.Errorf("budget.warn_fractions entries must be in (0,1)")
		}
	}
	return nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// parseDuration is a helper for "120s"-style fields with a fallback.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logging.BootError("invalid duration %q, using %v", s, fallback)
		return fallback
	}
	return d
}
