package config_test

import (
	"os"
	"testing"

	"github.com/luxfi/ruth/internal/config"
	"github.com/luxfi/ruth/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsClosedWithoutOracleEndpoint(t *testing.T) {
	os.Unsetenv("RUTH_ORACLE_ENDPOINT")
	_, err := config.Load()
	require.Error(t, err)
	e, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.ConfigError, e.Kind)
}

func TestLoadAppliesDefaultsAndEnvOverrides(t *testing.T) {
	os.Setenv("RUTH_ORACLE_ENDPOINT", "https://oracle.example/verify")
	os.Setenv("RUTH_QUORUM", "25")
	defer os.Unsetenv("RUTH_ORACLE_ENDPOINT")
	defer os.Unsetenv("RUTH_QUORUM")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://oracle.example/verify", cfg.Oracle.Endpoint)
	assert.EqualValues(t, 25, cfg.Quorum)
	assert.InDelta(t, float32(0.1), cfg.TrimRatio, 1e-9)
	assert.InDelta(t, 5.0, cfg.MaxNorm, 1e-9)
}
