package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "mysql", cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Campaign.SendTimeout)
	assert.Equal(t, 10*time.Second, cfg.Campaign.UnavailableMaxDelay)
	assert.Equal(t, 50, cfg.Supervisor.MaxRestarts)
	assert.InDelta(t, 1.5, cfg.Supervisor.Factor, 1e-9)
	assert.Contains(t, cfg.Supervisor.TransientPatterns, "EBUSY")
	assert.Equal(t, "channel.events", cfg.Kafka.Topic)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\nsupervisor:\n  max_restarts: 7\n"), 0o600))
	t.Setenv("CAMPAIGN_HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 7, cfg.Supervisor.MaxRestarts)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.Supervisor.BaseDelay, "untouched keys keep defaults")
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}
