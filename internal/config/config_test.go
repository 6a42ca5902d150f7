package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity-listener/internal/watcher"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	for _, p := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := Load(p)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		require.NoError(t, cfg.Validate())
	}
}

func TestLoadOverrides(t *testing.T) {
	p := writeConfig(t, `
log:
  level: debug
  format: json
server:
  listen: ":9000"
bluetooth:
  adapter: /org/bluez/hci1
  connect_capability_since: "6.1"
  capability_groups:
    bluetooth_connect: [plugdev]
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, 16, cfg.Server.SendBuffer, "untouched default")
	assert.Equal(t, "/org/bluez/hci1", cfg.Bluetooth.Adapter)

	pol, err := cfg.BluetoothPolicy()
	require.NoError(t, err)
	assert.Equal(t, watcher.Version{Major: 6, Minor: 1}, pol.ConnectSince)

	groups := cfg.CapabilityGroups()
	assert.Equal(t, []string{"plugdev"}, groups[watcher.CapabilityBluetoothConnect])
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "log: [",
		"bad level":      "log: {level: loud}",
		"bad format":     "log: {format: xml}",
		"empty listen":   `server: {listen: ""}`,
		"zero buffer":    "server: {send_buffer: 0}",
		"bad version":    `bluetooth: {connect_capability_since: "next"}`,
		"bad capability": "bluetooth: {capability_groups: {nfc: [x]}}",
		"bad adapter":    "bluetooth: {adapter: hci0}",
		"bad log size":   "log: {file: /tmp/x.log, max_size_mb: 0}",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
