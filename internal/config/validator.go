package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/pattonant/autopen2.0/internal/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its struct tags plus the
// cross-field constraints the tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("invalid config field %s: failed %q constraint", first.Namespace(), first.Tag()))
		}
		return types.WrapError(types.CONFIG_VALIDATION_FAILED, "config validation failed", err)
	}

	if sum := cfg.Scoring.RuleWeight + cfg.Scoring.OracleWeight; sum <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"scoring weights must sum to a positive value")
	}
	if cfg.Retry.MaxDelay > 0 && cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"retry.max_delay must not be smaller than retry.base_delay")
	}
	return nil
}
