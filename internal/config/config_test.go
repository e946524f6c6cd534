package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/not-vinayakverma71/ipcbridge/internal/transport"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestSampleParsesToDefaults(t *testing.T) {
	path := writeConfig(t, Sample())
	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	def.Transport.Dir = cfg.Transport.Dir // sample pins /tmp, default is os.TempDir()
	assert.Equal(t, &def, cfg)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[transport]
rendezvous = "myapp"
buffer_size = 131072

[backpressure]
policy = "queue"
timeout_ms = 250

[reconnection]
max_retries = 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "myapp", cfg.Transport.Rendezvous)
	assert.Equal(t, uint64(131072), cfg.Transport.BufferSize)

	bp := cfg.BackpressureConfig()
	assert.Equal(t, transport.PolicyQueue, bp.Policy)
	assert.Equal(t, 250*time.Millisecond, bp.Timeout)

	rc := cfg.ReconnectConfig()
	assert.Equal(t, uint64(10), rc.MaxRetries)
	assert.Equal(t, time.Second, rc.InitialInterval)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty rendezvous", func(c *Config) { c.Transport.Rendezvous = "" }},
		{"non power of two buffer", func(c *Config) { c.Transport.BufferSize = 10000 }},
		{"unknown policy", func(c *Config) { c.Backpressure.Policy = "panic" }},
		{"zero backpressure timeout", func(c *Config) { c.Backpressure.TimeoutMS = 0 }},
		{"max below initial interval", func(c *Config) { c.Reconnection.MaxIntervalMS = 1 }},
		{"multiplier below one", func(c *Config) { c.Reconnection.Multiplier = 0.5 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	path := writeConfig(t, "[transport\nrendezvous = ")
	_, err := Load(path)
	assert.Error(t, err)
}
