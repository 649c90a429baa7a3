package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	chdirForTest(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "punchclock_db", cfg.DBName)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 2*time.Minute, cfg.LeaseTTL)
	assert.Equal(t, 10000, cfg.MaxPending)
	assert.True(t, cfg.RetainSynced)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	chdirForTest(t, t.TempDir())
	t.Setenv("AGENT_SYNC_INTERVAL", "1m30s")
	t.Setenv("AGENT_RETAIN_SYNCED", "false")
	t.Setenv("AGENT_DEVICE_ID", "kiosk-lobby")
	t.Setenv("IS_LOCAL_DEV", "true")
	t.Setenv("TIMEZONE", "America/Sao_Paulo")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
	assert.False(t, cfg.RetainSynced)
	assert.Equal(t, "kiosk-lobby", cfg.DeviceID)
	assert.True(t, cfg.IsLocalDev)
	assert.Equal(t, "America/Sao_Paulo", cfg.Location().String())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Config{Timezone: "Mars/Olympus"}.Location())
}
