package audiotab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEngineConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadEngineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 8, cfg.DefaultBufferDepth)
}

func TestLoadEngineConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nmax_concurrent_nodes: 4\n"), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 4, cfg.MaxConcurrentNodes)
}
