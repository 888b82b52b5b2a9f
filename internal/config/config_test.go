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
	t.Setenv("VESSEL_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, time.Second/60, cfg.Server.TickInterval())
	assert.Equal(t, float32(-15), cfg.Physics.Gravity)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VESSEL_SERVER_PORT", "4000")
	t.Setenv("VESSEL_SERVER_LOCAL_VESSEL", "true")
	t.Setenv("VESSEL_NETWORK_SERVER_URL", "ws://example:4000/ws")
	t.Setenv("VESSEL_SPAWN_PENDING_TIMEOUT_TICKS", "30")
	t.Setenv("VESSEL_NETWORK_HANDSHAKE_TIMEOUT", "2s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.True(t, cfg.Server.LocalVessel)
	assert.Equal(t, "ws://example:4000/ws", cfg.Network.ServerURL)
	assert.Equal(t, uint64(30), cfg.Spawn.PendingTimeoutTicks)
	assert.Equal(t, 2*time.Second, cfg.Network.HandshakeTimeout)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  tick_rate: 30
  max_clients: 4
physics:
  gravity: -9.81
log:
  level: debug
`), 0o644))

	t.Setenv("VESSEL_SERVER_MAX_CLIENTS", "6")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Server.TickRate)
	assert.Equal(t, 6, cfg.Server.MaxClients, "env beats file")
	assert.InDelta(t, -9.81, cfg.Physics.Gravity, 1e-5)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("VESSEL_SERVER_TICK_RATE", "0")
	_, err = Load("")
	assert.Error(t, err)
}

func TestControlRateBelowTickRateIsRejected(t *testing.T) {
	t.Setenv("VESSEL_NETWORK_CONTROL_RATE", "30")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.control_rate")
}
