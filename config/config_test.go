package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv unsets the overlay variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"WS_LISTEN_ADDR", "LOG_LEVEL", "DRONE_BUS_ADDRESS", "ANNOUNCE_INTERVAL_MS",
		"EVENT_QUEUE_SIZE", "MQTT_BROKER", "MQTT_DRONE_ID", "MQTT_ANNOUNCE_TOPIC",
	} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "system", cfg.Bus.Address)
	assert.False(t, cfg.Mqtt.Enabled())
	assert.Equal(t, 3000, cfg.AnnounceInterval)
}

func TestEnvOverridesListenAddr(t *testing.T) {
	clearEnv(t)
	t.Setenv("WS_LISTEN_ADDR", "127.0.0.1:9000")

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
}

func TestFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"listenAddr": "127.0.0.1:8081",
		"logLevel": "debug",
		"bus": {"address": "session"},
		"mqtt": {"broker": "tcp://localhost:1883", "droneId": "d1"},
		"announceInterval": 1000
	}`)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("MQTT_DRONE_ID", "d2")

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8081", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "session", cfg.Bus.Address)
	assert.True(t, cfg.Mqtt.Enabled())
	assert.Equal(t, "d2", cfg.Mqtt.DroneId)
	assert.Equal(t, 1000, cfg.AnnounceInterval)
	// untouched keys keep their defaults
	assert.Equal(t, "drones/announce", cfg.Mqtt.AnnounceTopic)
	assert.Equal(t, 1000, cfg.EventQueueSize)
}

func TestMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestMalformedFile(t *testing.T) {
	_, err := NewConfig(writeConfig(t, `{"listenAddr":`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen address", func(c *Config) { c.ListenAddr = "" }},
		{"zero announce interval", func(c *Config) { c.AnnounceInterval = 0 }},
		{"zero queue size", func(c *Config) { c.EventQueueSize = 0 }},
		{"broker without drone id", func(c *Config) { c.Mqtt.Broker = "tcp://localhost:1883" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, defaults().Validate())
}
