package config

import "time"

// BrowserConfig configures the Chrome instance driven over CDP.
type BrowserConfig struct {
	DebuggerURL         string `yaml:"debugger_url"` // Attach to an existing Chrome instead of launching
	Headless            bool   `yaml:"headless"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	UserAgent           string `yaml:"user_agent"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	StealthScriptPath   string `yaml:"stealth_script_path"` // Page-init script injected by stealth_inject
	ScreenshotDir       string `yaml:"screenshot_dir"`
}

// DefaultBrowserConfig returns sensible defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:            true,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		ScreenshotDir:       "./screenshots",
	}
}

// NavigationTimeout returns the navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// GetViewportWidth returns viewport width.
func (c BrowserConfig) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c BrowserConfig) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}
