// Package compress handles text-artifact compression for the collector
// and cache: gzip with size-driven level selection, an LRU result cache
// keyed by content hash, bounded retries, and a concurrent batch mode.
package compress

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"jsrecon/internal/config"
	"jsrecon/internal/logging"
)

// Result is one compression outcome.
type Result struct {
	Compressed     []byte   `json:"-"`
	OriginalSize   int      `json:"originalSize"`
	CompressedSize int      `json:"compressedSize"`
	Ratio          float64  `json:"ratio"`
	Metadata       Metadata `json:"metadata"`
}

// Metadata records how the result was produced.
type Metadata struct {
	Algorithm string        `json:"algorithm"`
	Level     int           `json:"level"`
	Duration  time.Duration `json:"duration"`
	CacheHit  bool          `json:"cacheHit"`
}

// Options tune one compress call. Zero values select automatically.
type Options struct {
	Level int // 1..9; 0 picks by size bucket
}

// Stats is the cumulative account since construction.
type Stats struct {
	Operations     int64         `json:"operations"`
	OriginalSize   int64         `json:"originalSize"`
	CompressedSize int64         `json:"compressedSize"`
	Ratio          float64       `json:"ratio"`
	CacheHits      int64         `json:"cacheHits"`
	CacheMisses    int64         `json:"cacheMisses"`
	TotalTime      time.Duration `json:"totalTime"`
}

// Compressor is safe for concurrent use.
type Compressor struct {
	cfg config.CompressConfig

	mu    sync.Mutex
	cache *lru.Cache[string, *Result]
	stats Stats

	origMetric prometheus.Counter
	compMetric prometheus.Counter
}

// New creates a compressor with an LRU result cache.
func New(cfg config.CompressConfig) (*Compressor, error) {
	entries := cfg.CacheEntries
	if entries <= 0 {
		entries = 512
	}
	cache, err := lru.New[string, *Result](entries)
	if err != nil {
		return nil, err
	}
	origBytes, compBytes := metrics()
	return &Compressor{cfg: cfg, cache: cache, origMetric: origBytes, compMetric: compBytes}, nil
}

// ShouldCompress reports whether text is worth compressing at all.
func (c *Compressor) ShouldCompress(text string, threshold int) bool {
	if threshold <= 0 {
		threshold = c.cfg.Threshold
	}
	return len(text) >= threshold
}

// SelectLevel picks a gzip level by size bucket: small inputs afford
// maximum effort, huge ones get the fast end.
func SelectLevel(size int) int {
	switch {
	case size < 16*1024:
		return 9
	case size < 128*1024:
		return 7
	case size < 1024*1024:
		return 5
	case size < 8*1024*1024:
		return 3
	default:
		return 1
	}
}

// Compress compresses text, consulting the (hash, level) cache first.
// Transient failures are retried with linear backoff up to the
// configured ceiling; exhaustion surfaces the underlying failure.
func (c *Compressor) Compress(text string, opts Options) (*Result, error) {
	level := opts.Level
	if level < 1 || level > 9 {
		level = SelectLevel(len(text))
	}
	key := cacheKey(text, level)

	c.mu.Lock()
	if cached, ok := c.cache.Get(key); ok {
		c.stats.CacheHits++
		c.mu.Unlock()
		hit := *cached
		hit.Metadata.CacheHit = true
		return &hit, nil
	}
	c.stats.CacheMisses++
	c.mu.Unlock()

	var (
		res     *Result
		lastErr error
	)
	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
			logging.CompressWarn("retrying compression (attempt %d): %v", attempt+1, lastErr)
		}
		res, lastErr = gzipOnce(text, level)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("compression failed after %d attempts: %w", attempts, lastErr)
	}

	c.mu.Lock()
	c.cache.Add(key, res)
	c.stats.Operations++
	c.stats.OriginalSize += int64(res.OriginalSize)
	c.stats.CompressedSize += int64(res.CompressedSize)
	c.origMetric.Add(float64(res.OriginalSize))
	c.compMetric.Add(float64(res.CompressedSize))
	c.stats.TotalTime += res.Metadata.Duration
	c.mu.Unlock()
	return res, nil
}

func gzipOnce(text string, level int) (*Result, error) {
	start := time.Now()
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write([]byte(text)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	ratio := 0.0
	if len(text) > 0 {
		ratio = float64(len(out)) / float64(len(text))
	}
	return &Result{
		Compressed:     out,
		OriginalSize:   len(text),
		CompressedSize: len(out),
		Ratio:          ratio,
		Metadata: Metadata{
			Algorithm: "gzip",
			Level:     level,
			Duration:  time.Since(start),
		},
	}, nil
}

// Decompress inverts Compress.
func (c *Compressor) Decompress(blob []byte) (string, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("not a gzip blob: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BatchItem pairs an identifier with its text.
type BatchItem struct {
	ID   string
	Text string
}

// BatchResult is one item's outcome within a batch.
type BatchResult struct {
	ID     string
	Result *Result
	Err    error
}

// CompressBatch compresses items with bounded concurrency. The progress
// callback (may be nil) receives completed counts in completion order.
// Item ordering of the returned slice matches the input.
func (c *Compressor) CompressBatch(items []BatchItem, opts Options, progress func(done, total int)) []BatchResult {
	results := make([]BatchResult, len(items))
	limit := c.cfg.BatchConcurrency
	if limit < 1 {
		limit = 5
	}

	var g errgroup.Group
	g.SetLimit(limit)
	var doneMu sync.Mutex
	done := 0

	for i := range items {
		g.Go(func() error {
			item := items[i]
			res, err := c.Compress(item.Text, opts)
			results[i] = BatchResult{ID: item.ID, Result: res, Err: err}
			if progress != nil {
				doneMu.Lock()
				done++
				progress(done, len(items))
				doneMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Stats returns the cumulative counters.
func (c *Compressor) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if s.OriginalSize > 0 {
		s.Ratio = float64(s.CompressedSize) / float64(s.OriginalSize)
	}
	return s
}

func cacheKey(text string, level int) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]) + ":" + fmt.Sprint(level)
}
