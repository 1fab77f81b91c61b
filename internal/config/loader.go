package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/pattonant/autopen2.0/internal/types"
)

// Load reads configuration from the given YAML file, layered over the
// built-in defaults and under AUTOPEN_-prefixed environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AUTOPEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read config file", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to decode configuration", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers the built-in defaults with viper so partial config
// files inherit them.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("orchestrator.max_parallel", d.Orchestrator.MaxParallel)
	v.SetDefault("orchestrator.grace_period", d.Orchestrator.GracePeriod)
	v.SetDefault("orchestrator.require_clean_dependencies", d.Orchestrator.RequireCleanDependencies)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)

	v.SetDefault("scoring.rule_weight", d.Scoring.RuleWeight)
	v.SetDefault("scoring.oracle_weight", d.Scoring.OracleWeight)
	v.SetDefault("scoring.threshold", d.Scoring.Threshold)

	v.SetDefault("oracle.enabled", d.Oracle.Enabled)
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.timeout", d.Oracle.Timeout)

	v.SetDefault("database.path", d.Database.Path)
}
