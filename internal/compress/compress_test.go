package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsrecon/internal/config"
)

func newTestCompressor(t *testing.T) *Compressor {
	c, err := New(config.DefaultCompressConfig())
	require.NoError(t, err)
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestCompressor(t)
	text := strings.Repeat("function f() { return 42; }\n", 200)

	res, err := c.Compress(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, len(text), res.OriginalSize)
	assert.Less(t, res.CompressedSize, res.OriginalSize)
	assert.Equal(t, "gzip", res.Metadata.Algorithm)

	back, err := c.Decompress(res.Compressed)
	require.NoError(t, err)
	assert.Equal(t, text, back)
}

func TestSelectLevelBuckets(t *testing.T) {
	assert.Equal(t, 9, SelectLevel(1024))
	assert.Equal(t, 7, SelectLevel(64*1024))
	assert.Equal(t, 5, SelectLevel(512*1024))
	assert.Equal(t, 3, SelectLevel(4*1024*1024))
	assert.Equal(t, 1, SelectLevel(32*1024*1024))
}

func TestCacheHitSkipsRecompression(t *testing.T) {
	c := newTestCompressor(t)
	text := strings.Repeat("cached ", 1000)

	first, err := c.Compress(text, Options{Level: 6})
	require.NoError(t, err)
	assert.False(t, first.Metadata.CacheHit)

	second, err := c.Compress(text, Options{Level: 6})
	require.NoError(t, err)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, first.Compressed, second.Compressed)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.Operations, "only one real compression ran")
}

func TestDifferentLevelsAreDistinctCacheKeys(t *testing.T) {
	c := newTestCompressor(t)
	text := strings.Repeat("level matters ", 500)

	_, err := c.Compress(text, Options{Level: 1})
	require.NoError(t, err)
	res, err := c.Compress(text, Options{Level: 9})
	require.NoError(t, err)
	assert.False(t, res.Metadata.CacheHit)
}

func TestShouldCompress(t *testing.T) {
	c := newTestCompressor(t)
	assert.False(t, c.ShouldCompress("tiny", 0))
	assert.True(t, c.ShouldCompress(strings.Repeat("x", 2048), 0))
	assert.True(t, c.ShouldCompress("tiny", 2))
}

func TestCompressBatch(t *testing.T) {
	c := newTestCompressor(t)
	items := make([]BatchItem, 20)
	for i := range items {
		items[i] = BatchItem{ID: string(rune('a' + i)), Text: strings.Repeat("batch item ", 200+i)}
	}

	var calls int
	results := c.CompressBatch(items, Options{}, func(done, total int) {
		calls++
		assert.Equal(t, 20, total)
	})

	require.Len(t, results, 20)
	assert.Equal(t, 20, calls)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, items[i].ID, r.ID, "output order matches input")
		back, err := c.Decompress(r.Result.Compressed)
		require.NoError(t, err)
		assert.Equal(t, items[i].Text, back)
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	c := newTestCompressor(t)
	_, err := c.Decompress([]byte("definitely not gzip"))
	assert.Error(t, err)
}

func TestStatsAccumulate(t *testing.T) {
	c := newTestCompressor(t)
	_, err := c.Compress(strings.Repeat("a", 10000), Options{})
	require.NoError(t, err)
	_, err = c.Compress(strings.Repeat("b", 20000), Options{})
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Operations)
	assert.Equal(t, int64(30000), stats.OriginalSize)
	assert.Greater(t, stats.Ratio, 0.0)
	assert.Less(t, stats.Ratio, 1.0)
}
