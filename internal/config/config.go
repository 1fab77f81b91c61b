// Package config defines the runtime configuration and its viper-backed
// loader. Configuration merges, in increasing precedence: built-in
// defaults, the YAML config file, and AUTOPEN_-prefixed environment
// variables.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Retry        RetryConfig        `mapstructure:"retry" yaml:"retry"`
	Scoring      ScoringConfig      `mapstructure:"scoring" yaml:"scoring"`
	Oracle       OracleConfig       `mapstructure:"oracle" yaml:"oracle"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// OrchestratorConfig controls phase execution.
type OrchestratorConfig struct {
	// MaxParallel bounds concurrent adapter invocations and exploit steps.
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel" validate:"min=1,max=64"`

	// GracePeriod is how long in-flight exploit steps may run after the
	// kill-switch fires.
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period" validate:"min=0"`

	// RequireCleanDependencies makes partial phase results fail downstream
	// preconditions.
	RequireCleanDependencies bool `mapstructure:"require_clean_dependencies" yaml:"require_clean_dependencies"`
}

// RetryConfig controls transient adapter failure retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay" validate:"min=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"min=0"`
}

// ScoringConfig controls the risk scoring engine and the planner threshold.
type ScoringConfig struct {
	RuleWeight   float64 `mapstructure:"rule_weight" yaml:"rule_weight" validate:"min=0,max=1"`
	OracleWeight float64 `mapstructure:"oracle_weight" yaml:"oracle_weight" validate:"min=0,max=1"`

	// Threshold is the minimum combined score for plan inclusion.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold" validate:"min=0,max=100"`
}

// OracleConfig controls the optional LLM scoring oracle.
type OracleConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
}

// DatabaseConfig controls session snapshot persistence.
type DatabaseConfig struct {
	// Path is the sqlite database file; empty disables persistence.
	Path string `mapstructure:"path" yaml:"path"`
}
