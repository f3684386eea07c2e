package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, 60*time.Minute, cfg.Room.BanDuration)
}

func TestLoadDefaultsFromTags(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, *Default(), *cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CODEROOM_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("CODEROOM_EXECUTOR_TIMEOUT", "5s")
	t.Setenv("CODEROOM_ROOM_BANDURATION", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Room.BanDuration)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("CODEROOM_WEBSOCKET_BUFFERSIZE", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateChecks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"zero ping", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero write timeout", func(c *Config) { c.WebSocket.WriteTimeout = 0 }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"empty temp dir", func(c *Config) { c.Executor.TempDir = "" }},
		{"zero exec timeout", func(c *Config) { c.Executor.Timeout = 0 }},
		{"zero ban duration", func(c *Config) { c.Room.BanDuration = 0 }},
		{"zero event buffer", func(c *Config) { c.Room.EventBuffer = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
