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
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("JSH_HISTORY_MAX", "20")
	t.Setenv("JSH_POLL_MIN", "2s")
	t.Setenv("JSH_SPAWN_BG_PAUSED", "true")
	t.Setenv("JSH_DB", "/tmp/jsh.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Shell.HistoryMax)
	assert.Equal(t, 2*time.Second, cfg.Shell.PollMin)
	assert.True(t, cfg.Shell.SpawnBgPaused)
	assert.Equal(t, "/tmp/jsh.db", cfg.Store.DBPath)
	assert.Equal(t, 10000, cfg.Shell.PipeBuffer)
}

func TestLoadOrDefault_InvalidEnv(t *testing.T) {
	t.Setenv("JSH_PIPE_BUFFER", "lots")

	_, err := Load()
	assert.Error(t, err)
	assert.Equal(t, Default(), LoadOrDefault())
}
