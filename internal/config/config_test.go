package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 200, cfg.Collector.MaxFilesPerCollect)
	assert.Equal(t, 2*1024*1024, cfg.Collector.MaxSingleFileSize)
	assert.Equal(t, 512*1024, cfg.Collector.MaxResponseSize)
	assert.Equal(t, 5, cfg.Compress.BatchConcurrency)
	assert.Equal(t, []float64{0.5, 0.75, 0.9}, cfg.Budget.WarnFractions)
	assert.True(t, cfg.Cache.DiskTTL() > cfg.Cache.MemoryTTL())
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Collector, cfg.Collector)
}

func TestLoadOverridesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
browser:
  headless: false
  navigation_timeout_ms: 5000
collector:
  max_files_per_collect: 50
  max_single_file_size: 4096
llm:
  provider: gemini
  model: gemini-2.0-flash
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 5*time.Second, cfg.Browser.NavigationTimeout())
	assert.Equal(t, 50, cfg.Collector.MaxFilesPerCollect)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	// Untouched sections keep defaults.
	assert.Equal(t, DefaultCacheConfig().Dir, cfg.Cache.Dir)
}

func TestLoadRejectsBadBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collector:\n  max_files_per_collect: 0\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("JSRECON_API_KEY", "sk-test")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}
