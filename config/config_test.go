package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/opscascade/cascade/config"
)

func Test_Load_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, uint(1), cfg.NumTries)
	assert.Equal(t, time.Second, cfg.RetryInterval)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
}

func Test_Load_MissingFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("/nonexistent/optree.yaml")
	require.NoError(t, err)
	assert.Equal(t, uint(1), cfg.NumTries)
}

func Test_Load_EnvOverride(t *testing.T) {
	t.Setenv("OPTREE_NUM_TRIES", "5")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, uint(5), cfg.NumTries)
}
