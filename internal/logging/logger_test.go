package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, ws, body string) {
	t.Helper()
	dir := filepath.Join(ws, ".jsrecon")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644))
}

func TestInitializeWithoutConfigIsSilent(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Initialize(ws))
	defer CloseAll()

	assert.False(t, IsDebugMode())
	// No logs directory should be created in production mode.
	_, err := os.Stat(filepath.Join(ws, ".jsrecon", "logs"))
	assert.True(t, os.IsNotExist(err))
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	ws := t.TempDir()
	writeConfig(t, ws, "logging:\n  debug_mode: true\n  level: debug\n")
	require.NoError(t, Initialize(ws))
	defer CloseAll()

	require.True(t, IsDebugMode())
	Collector("harvested %d files", 3)

	entries, err := os.ReadDir(filepath.Join(ws, ".jsrecon", "logs"))
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	assert.True(t, found, "expected at least one log file")
}

func TestCategoryFilter(t *testing.T) {
	ws := t.TempDir()
	writeConfig(t, ws, "logging:\n  debug_mode: true\n  level: info\n  categories:\n    taint: false\n")
	require.NoError(t, Initialize(ws))
	defer CloseAll()

	assert.False(t, IsCategoryEnabled(CategoryTaint))
	assert.True(t, IsCategoryEnabled(CategoryCache))

	// Disabled category returns a no-op logger; writing must not panic.
	Taint("should be dropped")
}
