package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/config"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:12300", cfg.Server.URL)
	assert.Equal(t, 15, cfg.Agents.Count)
	assert.Equal(t, 500, cfg.Planning.PathMaxIterations)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  url: ws://match.example:12300
  team: B
  password: secret
agents:
  prefix: bee
  count: 3
planning:
  marker_purge_steps: 7
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://match.example:12300", cfg.Server.URL)
	assert.Equal(t, "B", cfg.Server.Team)
	assert.Equal(t, []string{"bee1", "bee2", "bee3"}, cfg.AgentIDs())

	// Unset keys keep their defaults.
	assert.Equal(t, 7, cfg.Planning.MarkerPurgeSteps)
	assert.Equal(t, 500, cfg.Planning.PathMaxIterations)
	assert.Equal(t, 100, cfg.Planning.MaxEnergy)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  count: 0\n"), 0o644))
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	params := config.Default().Params()
	assert.Equal(t, 500, params.PathMaxIterations)
	assert.Equal(t, 10, params.MarkerPurgeSteps)
	assert.Equal(t, 0.20, params.EnergyMinPct)
}
