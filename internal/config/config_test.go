package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 4, cfg.MaxPlayers)
	assert.Equal(t, 30, cfg.DefaultDuration)
	assert.Equal(t, 15, cfg.MinDuration)
	assert.Equal(t, 120, cfg.MaxDuration)
	assert.Equal(t, time.Minute, cfg.WaitingTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 3, cfg.SendAttempts)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_EnvOverridesDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADDR=:9000\nHEARTBEAT_INTERVAL=10s\nLOG_FORMAT=console\n"), 0o600))
	t.Setenv("ADDR", ":7000")
	// Registered so cleanup unsets what godotenv writes.
	t.Setenv("HEARTBEAT_INTERVAL", "")
	t.Setenv("LOG_FORMAT", "")
	require.NoError(t, os.Unsetenv("HEARTBEAT_INTERVAL"))
	require.NoError(t, os.Unsetenv("LOG_FORMAT"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	base, err := Load(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"too many players", func(c *Config) { c.MaxPlayers = 6 }},
		{"inverted bounds", func(c *Config) { c.MinDuration = 200 }},
		{"default out of range", func(c *Config) { c.DefaultDuration = 5 }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"no attempts", func(c *Config) { c.SendAttempts = 0 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}
