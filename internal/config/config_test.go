package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/internal/config"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tcp:
  listen: ":9100"
  timeout: 5s
transfer:
  max_segment_length: 1300
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.TCP.Listen)
	assert.Equal(t, 5*time.Second, cfg.TCP.Timeout)
	assert.Equal(t, uint64(1300), cfg.Transfer.MaxSegmentLength)
	assert.Equal(t, config.Default().UDP, cfg.UDP)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("FLEETLINK_UDP_LISTEN", ":9200")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.UDP.Listen)
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "fleetlink.yaml")
	require.NoError(t, config.WriteDefault(path))
	assert.Error(t, config.WriteDefault(path), "existing config must not be overwritten")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := config.Default()
	cfg.WorkDir = ""
	cfg.Store.ControllerSlots = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "work_dir")
	assert.Contains(t, err.Error(), "controller_slots")
}
