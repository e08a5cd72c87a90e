package config

import "time"

// CacheConfig configures the two-tier script cache.
type CacheConfig struct {
	Dir           string `yaml:"dir"`
	MemoryBudget  int    `yaml:"memory_budget"`  // Bytes resident across memory entries
	MemoryEntries int    `yaml:"memory_entries"` // LRU slot cap
	MemoryTTLStr  string `yaml:"memory_ttl"`
	DiskTTLStr    string `yaml:"disk_ttl"`
}

// DefaultCacheConfig returns the cache defaults. The disk TTL is longer
// than the memory TTL so warm entries outlive hot ones.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Dir:           ".jsrecon/cache",
		MemoryBudget:  64 * 1024 * 1024,
		MemoryEntries: 256,
		MemoryTTLStr:  "10m",
		DiskTTLStr:    "24h",
	}
}

// MemoryTTL returns the hot-tier TTL.
func (c CacheConfig) MemoryTTL() time.Duration {
	return parseDuration(c.MemoryTTLStr, 10*time.Minute)
}

// DiskTTL returns the warm-tier TTL.
func (c CacheConfig) DiskTTL() time.Duration {
	return parseDuration(c.DiskTTLStr, 24*time.Hour)
}
