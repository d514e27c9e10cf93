package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "trend-v1", cfg.DefaultModel)
	assert.Equal(t, 5.0, cfg.DeadBand)
	assert.Equal(t, 70.0, cfg.HypoThreshold)
	assert.Equal(t, 180.0, cfg.HyperThreshold)
	assert.Equal(t, "30 minutes", cfg.ForecastTimeframe)
	assert.Equal(t, 30*time.Minute, cfg.NotifyCooldown)
	assert.Equal(t, 10*time.Minute, cfg.ReconcileTolerance)
	assert.True(t, cfg.AutoTickEnabled)
	assert.False(t, cfg.UsePostgres())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEAD_BAND", "7.5")
	t.Setenv("NOTIFY_COOLDOWN", "45m")
	t.Setenv("AUTO_TICK_ENABLED", "no")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("AUTO_TICK_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7.5, cfg.DeadBand)
	assert.Equal(t, 45*time.Minute, cfg.NotifyCooldown)
	assert.False(t, cfg.AutoTickEnabled)
	assert.Equal(t, int64(-1001234), cfg.TelegramChatID)
	assert.True(t, cfg.UsePostgres())
	assert.Equal(t, 8, cfg.AutoTickConcurrency)
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("HYPO_THRESHOLD", "200")
	t.Setenv("HYPER_THRESHOLD", "180")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadMLURL(t *testing.T) {
	t.Setenv("ML_API_URL", "not a url")

	_, err := Load()
	assert.Error(t, err)
}

func TestCooldownFollowsTimeframe(t *testing.T) {
	t.Setenv("FORECAST_TIMEFRAME", "1 hour")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.ForecastHorizon)
	assert.Equal(t, time.Hour, cfg.NotifyCooldown)

	t.Setenv("NOTIFY_COOLDOWN", "20m")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, cfg.NotifyCooldown)
}

func TestLoadRejectsBadTimeframe(t *testing.T) {
	t.Setenv("FORECAST_TIMEFRAME", "eventually")

	_, err := Load()
	assert.Error(t, err)
}
