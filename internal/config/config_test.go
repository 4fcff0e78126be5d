package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "taskforge", cfg.Name)
	assert.Equal(t, 30*time.Second, cfg.GetSandboxTimeout())
	assert.Equal(t, 0.05, cfg.Evolution.CommitMargin)
	require.NoError(t, cfg.Validate())
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	content := `
sandbox:
  timeout: 10s
evolution:
  commit_margin: 0.10
  bench_iterations: 5
logging:
  debug: true
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.GetSandboxTimeout())
	assert.Equal(t, 0.10, cfg.Evolution.CommitMargin)
	assert.Equal(t, 5, cfg.Evolution.BenchIterations)
	assert.True(t, cfg.Logging.Debug)
	// Untouched fields keep their defaults.
	assert.Equal(t, ".forge/taskforge.db", cfg.Store.DatabasePath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FORGE_SANDBOX_TIMEOUT", "3s")
	t.Setenv("FORGE_LOG_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.GetSandboxTimeout())
	assert.True(t, cfg.Logging.Debug)
}

func TestPathResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace = "/tmp/ws"
	assert.Equal(t, "/tmp/ws/.forge/taskforge.db", cfg.DatabasePath())
	assert.Equal(t, "/tmp/ws/.forge/inbox/tasks.txt", cfg.InboxPath())

	cfg.Store.DatabasePath = "/abs/forge.db"
	assert.Equal(t, "/abs/forge.db", cfg.DatabasePath())
}

func TestValidateRejectsBadMargin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Evolution.CommitMargin = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Evolution.BenchIterations = 0
	assert.Error(t, cfg.Validate())
}

func TestBadDurationFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.Timeout = "not-a-duration"
	assert.Equal(t, 30*time.Second, cfg.GetSandboxTimeout())
}
