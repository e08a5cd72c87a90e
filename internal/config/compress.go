package config

// CompressConfig configures the artifact compressor.
type CompressConfig struct {
	Threshold        int `yaml:"threshold"`         // Bytes below which text is left alone
	BatchConcurrency int `yaml:"batch_concurrency"` // Parallel in-flight batch items
	MaxRetries       int `yaml:"max_retries"`
	CacheEntries     int `yaml:"cache_entries"` // LRU cap on cached compression results
}

// DefaultCompressConfig returns the compressor defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Threshold:        1024,
		BatchConcurrency: 5,
		MaxRetries:       3,
		CacheEntries:     512,
	}
}
