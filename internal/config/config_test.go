package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("sensor:\n  interface: eth0\n"))
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Sensor.Interface)
	assert.Equal(t, int32(2048), cfg.Sensor.SnapLen)
	assert.Equal(t, "/var/log/scansentry", cfg.Storage.LogDirectory)
	assert.Equal(t, "auth.log*", cfg.Whitelist.AuthLogPattern)
	assert.True(t, cfg.Network.Autodetect)

	period, err := cfg.WritePeriod()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, period)
}

func TestParse_Overrides(t *testing.T) {
	data := []byte(`
sensor:
  interface: ens3
  capture_filter: "ip"
  write_period: 10s
  ignore_addresses: ["192.0.2.1"]
  ignore_ports: [123, 5353]
  debug: true
whitelist:
  addresses: ["198.51.100.1"]
network:
  local_networks: ["10.0.0.0/8"]
exporters:
  nats:
    enabled: true
    subject: custom.subject
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "ip", cfg.Sensor.CaptureFilter)
	assert.Equal(t, []int{123, 5353}, cfg.Sensor.IgnorePorts)
	assert.True(t, cfg.Sensor.Debug)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Network.LocalNetworks)
	assert.True(t, cfg.Exporters.NATS.Enabled)
	assert.Equal(t, "custom.subject", cfg.Exporters.NATS.Subject)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Exporters.NATS.URL)

	period, err := cfg.WritePeriod()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, period)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad period":       "sensor:\n  write_period: soon\n",
		"negative period":  "sensor:\n  write_period: -1s\n",
		"bad port":         "sensor:\n  ignore_ports: [70000]\n",
		"bad ignore addr":  "sensor:\n  ignore_addresses: [\"nope\"]\n",
		"ipv6 whitelist":   "whitelist:\n  addresses: [\"::1\"]\n",
		"bad cidr":         "network:\n  local_networks: [\"10.0.0.0/99\"]\n",
		"empty log dir":    "storage:\n  log_directory: \"\"\n",
		"malformed yaml":   "sensor: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  log_directory: /tmp/ss\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ss", cfg.Storage.LogDirectory)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
