// Package logging provides config-driven categorized file-based logging.
// Logs are written to .jsrecon/logs/ with separate files per category.
// Logging is controlled by the logging section of .jsrecon/config.yaml -
// when debug_mode is false, no logs are written.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and shutdown
	CategoryBrowser   Category = "browser"   // Browser lifecycle, CDP
	CategoryCollector Category = "collector" // Script harvesting
	CategoryCache     Category = "cache"     // Two-tier script cache
	CategoryCompress  Category = "compress"  // Artifact compression
	CategoryAnalysis  Category = "analysis"  // Obfuscation detection, crypto patterns
	CategoryDeob      Category = "deob"      // Deobfuscation pipeline
	CategoryTaint     Category = "taint"     // Taint flow analysis
	CategoryEnvSim    Category = "envsim"    // Environment synthesis
	CategoryDetail    Category = "detail"    // Detail-token store
	CategoryBudget    Category = "budget"    // Token budget ledger
	CategoryTools     Category = "tools"     // Tool dispatch
	CategoryAPI       Category = "api"       // Model API calls
)

// loggingConfig mirrors the logging section of config.yaml to avoid a
// circular import on the config package.
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	cfg       loggingConfig
	cfgMu     sync.RWMutex
	logLevel  int
)

const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config. Call once
// at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}
	workspace = ws
	logsDir = filepath.Join(workspace, ".jsrecon", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		cfg.DebugMode = false
	}

	if !cfg.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== jsrecon logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Log level: %s", cfg.Level)
	return nil
}

func loadConfig() error {
	cfgMu.Lock()
	defer cfgMu.Unlock()

	configPath := filepath.Join(workspace, ".jsrecon", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = production mode (no logging)
			cfg.DebugMode = false
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg = cf.Logging

	switch cfg.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	return nil
}

// ReloadConfig reloads the logging config from disk. Called by the
// config watcher when the file changes at runtime.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	cfgMu.RLock()
	defer cfgMu.RUnlock()

	if !cfg.DebugMode {
		return false
	}
	if cfg.Categories == nil {
		return true
	}
	enabled, exists := cfg.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category. Returns a
// no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date-prefixed filename for easy rotation.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience functions. No-ops when the category is disabled.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Browser(format string, args ...interface{})      { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }
func BrowserWarn(format string, args ...interface{})  { Get(CategoryBrowser).Warn(format, args...) }
func BrowserError(format string, args ...interface{}) { Get(CategoryBrowser).Error(format, args...) }

func Collector(format string, args ...interface{}) { Get(CategoryCollector).Info(format, args...) }
func CollectorDebug(format string, args ...interface{}) {
	Get(CategoryCollector).Debug(format, args...)
}
func CollectorWarn(format string, args ...interface{}) { Get(CategoryCollector).Warn(format, args...) }
func CollectorError(format string, args ...interface{}) {
	Get(CategoryCollector).Error(format, args...)
}

func Cache(format string, args ...interface{})      { Get(CategoryCache).Info(format, args...) }
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }
func CacheWarn(format string, args ...interface{})  { Get(CategoryCache).Warn(format, args...) }

func Compress(format string, args ...interface{})      { Get(CategoryCompress).Info(format, args...) }
func CompressDebug(format string, args ...interface{}) { Get(CategoryCompress).Debug(format, args...) }
func CompressWarn(format string, args ...interface{})  { Get(CategoryCompress).Warn(format, args...) }

func Analysis(format string, args ...interface{})      { Get(CategoryAnalysis).Info(format, args...) }
func AnalysisDebug(format string, args ...interface{}) { Get(CategoryAnalysis).Debug(format, args...) }

func Deob(format string, args ...interface{})      { Get(CategoryDeob).Info(format, args...) }
func DeobDebug(format string, args ...interface{}) { Get(CategoryDeob).Debug(format, args...) }
func DeobWarn(format string, args ...interface{})  { Get(CategoryDeob).Warn(format, args...) }

func Taint(format string, args ...interface{})      { Get(CategoryTaint).Info(format, args...) }
func TaintDebug(format string, args ...interface{}) { Get(CategoryTaint).Debug(format, args...) }

func EnvSim(format string, args ...interface{})      { Get(CategoryEnvSim).Info(format, args...) }
func EnvSimDebug(format string, args ...interface{}) { Get(CategoryEnvSim).Debug(format, args...) }

func Detail(format string, args ...interface{})      { Get(CategoryDetail).Info(format, args...) }
func DetailDebug(format string, args ...interface{}) { Get(CategoryDetail).Debug(format, args...) }

func Budget(format string, args ...interface{})      { Get(CategoryBudget).Info(format, args...) }
func BudgetDebug(format string, args ...interface{}) { Get(CategoryBudget).Debug(format, args...) }

func Tools(format string, args ...interface{})      { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }
func ToolsWarn(format string, args ...interface{})  { Get(CategoryTools).Warn(format, args...) }
func ToolsError(format string, args ...interface{}) { Get(CategoryTools).Error(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
