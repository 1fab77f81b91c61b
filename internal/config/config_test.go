package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattonant/autopen2.0/internal/types"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Orchestrator.MaxParallel)
	assert.InDelta(t, 0.6, cfg.Scoring.RuleWeight, 0.001)
	assert.InDelta(t, 0.4, cfg.Scoring.OracleWeight, 0.001)
	assert.Equal(t, float64(50), cfg.Scoring.Threshold)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autopen.yaml")
	content := `logging:
  level: debug
  format: json
orchestrator:
  max_parallel: 8
scoring:
  threshold: 65
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8, cfg.Orchestrator.MaxParallel)
	assert.Equal(t, float64(65), cfg.Scoring.Threshold)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Orchestrator.GracePeriod)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_LOAD_FAILED, types.CodeOf(err))
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autopen.yaml")
	content := `logging:
  level: verbose
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, types.CodeOf(err))
}

func TestValidate_CrossFieldConstraints(t *testing.T) {
	t.Run("zero weights", func(t *testing.T) {
		cfg := Default()
		cfg.Scoring.RuleWeight = 0
		cfg.Scoring.OracleWeight = 0

		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights")
	})

	t.Run("max delay below base delay", func(t *testing.T) {
		cfg := Default()
		cfg.Retry.BaseDelay = 10 * time.Second
		cfg.Retry.MaxDelay = time.Second

		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_delay")
	})
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("AUTOPEN_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
