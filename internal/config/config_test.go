package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := ParseArgs(nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, ":7000", cfg.Server.Address)
	require.Equal(t, ":7000", cfg.Server.PublicAddress)
	require.Equal(t, "warden.db", cfg.Storage.Path)
	require.Equal(t, time.Second, cfg.Sweep.Interval)
	require.Equal(t, "servers.json", cfg.Directory.Path)
	require.False(t, cfg.Maintaining())
}

func TestNamespacedFlags(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"--db-path", "/var/lib/warden/warden.db",
		"--sweep-interval", "5s",
		"--rate-limit-packet-rate", "2.5",
		"--public-address", "authority.example:7000",
		"--grant", "AA:BB=global_ban",
	})
	require.NoError(t, err)

	require.Equal(t, "/var/lib/warden/warden.db", cfg.Storage.Path)
	require.Equal(t, 5*time.Second, cfg.Sweep.Interval)
	require.InDelta(t, 2.5, cfg.RateLimit.PacketRate, 0.001)
	require.Equal(t, "authority.example:7000", cfg.Server.PublicAddress)
	require.True(t, cfg.Maintaining())
}

func TestEnvironment(t *testing.T) {
	t.Setenv("WARDEN_SWEEP_INTERVAL", "250ms")
	t.Setenv("WARDEN_CONNECTION_KEY", "secret")

	cfg, err := ParseArgs(nil)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.Sweep.Interval)
	require.Equal(t, "secret", cfg.Server.ConnectionKey)
}

func TestValidate(t *testing.T) {
	cfg, err := ParseArgs([]string{"--sweep-interval", "0s"})
	require.NoError(t, err)
	require.Error(t, cfg.Validate())
}
