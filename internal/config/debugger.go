package config

// DebuggerConfig configures the CDP debugger tool group.
type DebuggerConfig struct {
	SessionDir string `yaml:"session_dir"` // Saved debugger sessions
}

// DefaultDebuggerConfig returns the debugger defaults.
func DefaultDebuggerConfig() DebuggerConfig {
	return DebuggerConfig{
		SessionDir: "./debugger-sessions",
	}
}
