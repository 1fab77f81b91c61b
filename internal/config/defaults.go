package config

import "time"

// Default returns the built-in configuration. Values mirror the component
// defaults so a config-less run behaves identically to direct construction.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Orchestrator: OrchestratorConfig{
			MaxParallel:              4,
			GracePeriod:              10 * time.Second,
			RequireCleanDependencies: false,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Scoring: ScoringConfig{
			RuleWeight:   0.6,
			OracleWeight: 0.4,
			Threshold:    50,
		},
		Oracle: OracleConfig{
			Enabled: false,
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "",
		},
	}
}
