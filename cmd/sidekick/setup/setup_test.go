package setup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/config"
)

func TestWriteConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidekick", "config.toml")
	cfg := config.Default()
	cfg.Spawn.RunTimeout = config.Duration{Duration: 10 * time.Minute}

	require.NoError(t, writeConfig(path, cfg))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DefaultLLM, loaded.DefaultLLM)
	assert.Equal(t, cfg.Spawn.MaxIterations, loaded.Spawn.MaxIterations)
	assert.Equal(t, 10*time.Minute, loaded.Spawn.RunTimeout.Duration)
	assert.Equal(t, cfg.Tools.Exec.Timeout, loaded.Tools.Exec.Timeout)

	err = writeConfig(path, cfg)
	assert.ErrorContains(t, err, "already exists")
}
