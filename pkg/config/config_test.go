package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.TaskCacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.SyncPollInterval)
	assert.Equal(t, 480, cfg.DayCapacityMinutes)
	assert.Equal(t, 5*time.Second, cfg.NotifyConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.NotifyRequestTimeout)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SYNC_POLL_INTERVAL", "1m")
	t.Setenv("TASKBRAIN_DAY_CAPACITY_MINUTES", "600")
	t.Setenv("TODOIST_WEBHOOK_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, time.Minute, cfg.SyncPollInterval)
	assert.Equal(t, 600, cfg.DayCapacityMinutes)
	assert.Equal(t, "s3cret", cfg.TodoistWebhookSecret)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SYNC_POLL_INTERVAL", "not-a-duration")
	t.Setenv("TASKBRAIN_DAY_CAPACITY_MINUTES", "lots")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.SyncPollInterval)
	assert.Equal(t, 480, cfg.DayCapacityMinutes)
}
