package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// no config/config.none.yaml exists here, so every knob falls back
	t.Setenv("CONFIG_ENV", "none")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.NotEmpty(t, cfg.Secret, "cookie store must never get an empty key")
	assert.False(t, cfg.SecureCookies)
	assert.Equal(t, int64(32768), cfg.ReadLimit)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.Equal(t, 20*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 40*time.Second, cfg.CloseTimeout)
	assert.Equal(t, 3*time.Second, cfg.SweepPeriod)
	assert.Equal(t, 15*time.Second, cfg.StaleAfter)
	assert.Equal(t, time.Hour, cfg.MaintenancePeriod)
}
