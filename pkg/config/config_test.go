package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":3000", cfg.Relay.Address)
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.EchoSuppressionWindow.Duration())
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Relay.Address, cfg.Relay.Address)
}

func TestLoadParsesYAMLDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
relay:
  address: ":4000"
  ping_interval: 5s
sync:
  echo_suppression_window: 250ms
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Relay.Address)
	assert.Equal(t, 5*time.Second, cfg.Relay.PingInterval.Duration())
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.EchoSuppressionWindow.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Values not in the file keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Relay.PongTimeout.Duration())
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
relay:
  ping_interval: sometimes
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestPortEnvOverridesAddress(t *testing.T) {
	t.Setenv("PORT", "8123")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8123", cfg.Relay.Address)
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty relay address", func(c *Config) { c.Relay.Address = "" }},
		{"zero ping interval", func(c *Config) { c.Relay.PingInterval = 0 }},
		{"zero suppression window", func(c *Config) { c.Sync.EchoSuppressionWindow = 0 }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"tracing enabled without jaeger url", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.JaegerURL = ""
		}},
		{"rate limiting enabled without rps", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
