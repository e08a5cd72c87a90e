package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsrecon/internal/config"
)

func testConfig(t *testing.T) config.CacheConfig {
	cfg := config.DefaultCacheConfig()
	cfg.Dir = t.TempDir()
	return cfg
}

func TestGetAfterSet(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)

	payload := []byte(`{"files":[{"url":"https://a.test/app.js"}]}`)
	require.NoError(t, c.Set("https://a.test", "opts1", payload))

	got, ok := c.Get("https://a.test", "opts1")
	require.True(t, ok)
	assert.Equal(t, payload, got)

	_, ok = c.Get("https://a.test", "other-opts")
	assert.False(t, ok, "options hash is part of the key")
}

func TestMemoryMissFallsBackToDisk(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg)
	require.NoError(t, err)

	payload := []byte("payload-on-disk")
	require.NoError(t, c.Set("https://b.test", "h", payload))

	// Reopen: memory tier is empty, index and payload survive on disk.
	c2, err := New(cfg)
	require.NoError(t, err)
	got, ok := c2.Get("https://b.test", "h")
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, 1, c2.Stats().MemoryEntries, "disk hit promotes to memory")
}

func TestMemoryBudgetEnforcedBeforeInsert(t *testing.T) {
	cfg := testConfig(t)
	cfg.MemoryBudget = 100
	c, err := New(cfg)
	require.NoError(t, err)

	big := make([]byte, 60)
	require.NoError(t, c.Set("u1", "h", big))
	require.NoError(t, c.Set("u2", "h", big))

	// u1 must have been evicted to keep resident <= budget.
	assert.LessOrEqual(t, c.resident, int64(100))
	assert.Equal(t, 1, c.Stats().MemoryEntries)

	// Both remain reachable via disk.
	_, ok := c.Get("u1", "h")
	assert.True(t, ok)
}

func TestExpiredMemoryEntryInaccessible(t *testing.T) {
	cfg := testConfig(t)
	cfg.MemoryTTLStr = "1ms"
	cfg.DiskTTLStr = "1ms"
	c, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, c.Set("u", "h", []byte("v")))
	time.Sleep(10 * time.Millisecond)

	_, ok := c.Get("u", "h")
	assert.False(t, ok, "entries past TTL are inaccessible")
}

func TestCleanupRemovesExpired(t *testing.T) {
	cfg := testConfig(t)
	cfg.DiskTTLStr = "1ms"
	c, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, c.Set("u", "h", []byte("v")))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.Cleanup())

	stats := c.Stats()
	assert.Zero(t, stats.DiskEntries)
}

func TestClear(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, c.Set("u", "h", []byte("v")))
	require.NoError(t, c.Clear())

	stats := c.Stats()
	assert.Zero(t, stats.MemoryEntries)
	assert.Zero(t, stats.DiskEntries)
	_, ok := c.Get("u", "h")
	assert.False(t, ok)
}

func TestConcurrentGetSameKey(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg)
	require.NoError(t, err)
	payload := []byte("shared")
	require.NoError(t, c.Set("u", "h", payload))

	// Drop the memory tier so every goroutine races on the disk path.
	c.mu.Lock()
	c.mem.Purge()
	c.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok := c.Get("u", "h")
			assert.True(t, ok)
			assert.Equal(t, payload, got)
		}()
	}
	wg.Wait()
}

func TestStats(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(fmt.Sprintf("u%d", i), "h", []byte("0123456789")))
	}
	stats := c.Stats()
	assert.Equal(t, 3, stats.DiskEntries)
	assert.Equal(t, int64(30), stats.TotalSize)
}
