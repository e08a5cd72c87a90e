// Package cache is the two-tier store for collected-code results: a hot
// in-memory LRU in front of a warm on-disk tier. Entries are keyed by
// (url, options-hash); the disk tier stores payloads by content hash in
// a flat directory next to an index file. Memory TTL is shorter than
// disk TTL, and size headroom is enforced before insert, never after.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"jsrecon/internal/config"
	"jsrecon/internal/logging"
)

// cleanupScanLimit bounds how many index entries one Cleanup pass may
// examine, keeping its I/O bounded on large caches.
const cleanupScanLimit = 1024

// Stats describes cache occupancy.
type Stats struct {
	MemoryEntries int   `json:"memoryEntries"`
	DiskEntries   int   `json:"diskEntries"`
	TotalSize     int64 `json:"totalSize"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
}

type memEntry struct {
	data    []byte
	hash    string
	expires time.Time
}

type indexEntry struct {
	Hash     string    `json:"hash"`
	StoredAt time.Time `json:"storedAt"`
	Size     int64     `json:"size"`
}

// Cache is the two-tier store. All methods are safe for concurrent use;
// racing Gets on one key collapse to a single disk fetch.
type Cache struct {
	cfg config.CacheConfig
	dir string

	mu       sync.Mutex
	mem      *lru.Cache[string, *memEntry]
	resident int64 // bytes currently held by the memory tier
	index    map[string]indexEntry
	hits     int64
	misses   int64

	hitMetric  prometheus.Counter
	missMetric prometheus.Counter

	fetch singleflight.Group
}

// New opens (or creates) the cache rooted at cfg.Dir.
func New(cfg config.CacheConfig) (*Cache, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	hit, miss := metrics()
	c := &Cache{
		cfg:        cfg,
		dir:        cfg.Dir,
		index:      make(map[string]indexEntry),
		hitMetric:  hit,
		missMetric: miss,
	}

	entries := cfg.MemoryEntries
	if entries <= 0 {
		entries = 256
	}
	mem, err := lru.NewWithEvict[string, *memEntry](entries, func(_ string, e *memEntry) {
		c.resident -= int64(len(e.data))
	})
	if err != nil {
		return nil, err
	}
	c.mem = mem

	if err := c.loadIndex(); err != nil {
		logging.CacheWarn("index load failed, starting empty: %v", err)
		c.index = make(map[string]indexEntry)
	}
	return c, nil
}

// Key combines url and options hash into the cache key.
func Key(url, optionsHash string) string { return url + "|" + optionsHash }

// Get returns the cached payload for (url, optionsHash), or a miss. A
// memory hit never touches disk; a disk hit is promoted to memory.
func (c *Cache) Get(url, optionsHash string) ([]byte, bool) {
	key := Key(url, optionsHash)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.mem.Get(key); ok {
		if now.Before(e.expires) {
			c.hits++
			c.hitMetric.Inc()
			data := e.data
			c.mu.Unlock()
			return data, true
		}
		c.mem.Remove(key)
	}
	idx, onDisk := c.index[key]
	c.mu.Unlock()

	if !onDisk || now.Sub(idx.StoredAt) > c.cfg.DiskTTL() {
		c.mu.Lock()
		c.misses++
		c.missMetric.Inc()
		c.mu.Unlock()
		return nil, false
	}

	// At most one disk fetch per key; late arrivers share the result.
	v, err, _ := c.fetch.Do(key, func() (interface{}, error) {
		return c.readDisk(idx.Hash)
	})
	if err != nil {
		logging.CacheWarn("disk read for %s failed: %v", key, err)
		c.mu.Lock()
		c.misses++
		c.missMetric.Inc()
		c.mu.Unlock()
		return nil, false
	}
	data := v.([]byte)

	c.mu.Lock()
	c.hits++
	c.hitMetric.Inc()
	c.insertMemLocked(key, data, idx.Hash)
	c.mu.Unlock()
	return data, true
}

// Set stores the payload in both tiers. The memory tier evicts by LRU
// until the new entry fits under the resident budget; the disk entry is
// written under the payload's content hash.
func (c *Cache) Set(url, optionsHash string, result []byte) error {
	key := Key(url, optionsHash)
	hash := contentHash(result)

	if err := c.writeDisk(hash, result); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[key] = indexEntry{Hash: hash, StoredAt: time.Now(), Size: int64(len(result))}
	c.insertMemLocked(key, result, hash)
	return c.saveIndexLocked()
}

// insertMemLocked enforces the size budget before inserting.
func (c *Cache) insertMemLocked(key string, data []byte, hash string) {
	size := int64(len(data))
	budget := int64(c.cfg.MemoryBudget)
	if budget > 0 && size > budget {
		// A single oversized payload lives on disk only.
		return
	}
	for budget > 0 && c.resident+size > budget && c.mem.Len() > 0 {
		c.mem.RemoveOldest()
	}
	if _, ok := c.mem.Peek(key); ok {
		c.mem.Remove(key)
	}
	c.mem.Add(key, &memEntry{
		data:    data,
		hash:    hash,
		expires: time.Now().Add(c.cfg.MemoryTTL()),
	})
	c.resident += size
}

// Cleanup removes expired disk entries and their payload files. The
// pass is bounded; very large caches converge over repeated calls.
func (c *Cache) Cleanup() error {
	now := time.Now()
	ttl := c.cfg.DiskTTL()

	c.mu.Lock()
	var expired []string
	scanned := 0
	for key, idx := range c.index {
		if scanned >= cleanupScanLimit {
			break
		}
		scanned++
		if now.Sub(idx.StoredAt) > ttl {
			expired = append(expired, key)
		}
	}
	hashes := make(map[string]bool)
	for _, key := range expired {
		hashes[c.index[key].Hash] = true
		delete(c.index, key)
		c.mem.Remove(key)
	}
	// A hash still referenced by a live key must survive.
	for _, idx := range c.index {
		delete(hashes, idx.Hash)
	}
	err := c.saveIndexLocked()
	c.mu.Unlock()

	for h := range hashes {
		if rmErr := os.Remove(c.payloadPath(h)); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.CacheWarn("cleanup: remove %s: %v", h, rmErr)
		}
	}
	logging.CacheDebug("cleanup removed %d expired entries", len(expired))
	return err
}

// Clear flushes both tiers.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem.Purge()
	c.resident = 0
	for _, idx := range c.index {
		if err := os.Remove(c.payloadPath(idx.Hash)); err != nil && !os.IsNotExist(err) {
			logging.CacheWarn("clear: remove %s: %v", idx.Hash, err)
		}
	}
	c.index = make(map[string]indexEntry)
	return c.saveIndexLocked()
}

// Stats returns occupancy counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, idx := range c.index {
		total += idx.Size
	}
	return Stats{
		MemoryEntries: c.mem.Len(),
		DiskEntries:   len(c.index),
		TotalSize:     total,
		Hits:          c.hits,
		Misses:        c.misses,
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) payloadPath(hash string) string {
	return filepath.Join(c.dir, hash+".gz")
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, "index.json")
}

func (c *Cache) writeDisk(hash string, data []byte) error {
	path := c.payloadPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil // Content-addressed: identical payload already present.
	}

	f, err := os.CreateTemp(c.dir, "entry-*")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

func (c *Cache) readDisk(hash string) ([]byte, error) {
	f, err := os.Open(c.payloadPath(hash))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &c.index)
}

func (c *Cache) saveIndexLocked() error {
	data, err := json.Marshal(c.index)
	if err != nil {
		return err
	}
	return os.WriteFile(c.indexPath(), data, 0644)
}
