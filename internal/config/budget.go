package config

// BudgetConfig configures the token-budget ledger.
type BudgetConfig struct {
	MaxTokens     int       `yaml:"max_tokens"`     // Approximate response-token budget per session
	WarnFractions []float64 `yaml:"warn_fractions"` // Latched warning thresholds
	WindowStr     string    `yaml:"window"`         // Records older than this are dropped by Cleanup
	DetailMaxKB   int       `yaml:"detail_max_kb"`  // Results above this are routed through the detail store
}

// DefaultBudgetConfig returns the ledger defaults.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxTokens:     180000,
		WarnFractions: []float64{0.5, 0.75, 0.9},
		WindowStr:     "30m",
		DetailMaxKB:   50,
	}
}
