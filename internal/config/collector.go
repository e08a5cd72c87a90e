package config

import "time"

// CollectorConfig bounds the script harvester.
type CollectorConfig struct {
	MaxFilesPerCollect int    `yaml:"max_files_per_collect"` // Hard cap on files per Collect call
	MaxSingleFileSize  int    `yaml:"max_single_file_size"`  // Bytes; larger files are truncated
	MaxTotalSize       int    `yaml:"max_total_size"`        // Bytes across one collection
	MaxCollectedURLs   int    `yaml:"max_collected_urls"`    // Per-URL buffers kept across sessions
	MaxResponseSize    int    `yaml:"max_response_size"`     // Bytes any query method may return
	DynamicWaitMs      int    `yaml:"dynamic_wait_ms"`       // Dwell after network idle for late scripts
	CollectTimeout     string `yaml:"collect_timeout"`
}

// DefaultCollectorConfig returns the harvest bounds.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		MaxFilesPerCollect: 200,
		MaxSingleFileSize:  2 * 1024 * 1024,
		MaxTotalSize:       50 * 1024 * 1024,
		MaxCollectedURLs:   20,
		MaxResponseSize:    512 * 1024,
		DynamicWaitMs:      2000,
		CollectTimeout:     "60s",
	}
}

// Timeout returns the per-collect timeout.
func (c CollectorConfig) Timeout() time.Duration {
	return parseDuration(c.CollectTimeout, 60*time.Second)
}

// DynamicWait returns the dwell duration for dynamically inserted scripts.
func (c CollectorConfig) DynamicWait() time.Duration {
	return time.Duration(c.DynamicWaitMs) * time.Millisecond
}
