package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/focusstream/event"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 500, cfg.Pipeline.BufferCapacity)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.IdleTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.Sampling["scroll"])
	assert.Equal(t, "rule_based", cfg.Model.PreferredKind)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/focusstream.yaml")
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  buffer_capacity: 64
  flush_interval: 5s
  sampling:
    scroll: 100ms
model:
  preferred_kind: ensemble
nats:
  enabled: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Pipeline.BufferCapacity)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FlushInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.Sampling["scroll"])
	assert.Equal(t, "ensemble", cfg.Model.PreferredKind)
	assert.False(t, cfg.NATS.Enabled)
	// Untouched sections keep defaults
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FOCUSSTREAM_NATS_URL", "nats://edge:4222")
	t.Setenv("FOCUSSTREAM_MODEL_KIND", "ensemble")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://edge:4222", cfg.NATS.URL)
	assert.Equal(t, "ensemble", cfg.Model.PreferredKind)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero buffer capacity", func(c *Config) { c.Pipeline.BufferCapacity = 0 }},
		{"zero flush interval", func(c *Config) { c.Pipeline.FlushInterval = 0 }},
		{"zero idle timeout", func(c *Config) { c.Pipeline.IdleTimeout = 0 }},
		{"unknown sampling kind", func(c *Config) {
			c.Pipeline.Sampling["warp"] = time.Second
		}},
		{"negative sampling interval", func(c *Config) {
			c.Pipeline.Sampling["scroll"] = -time.Second
		}},
		{"unknown model kind", func(c *Config) { c.Model.PreferredKind = "quantum" }},
		{"nats enabled without url", func(c *Config) { c.NATS.URL = "" }},
		{"websocket enabled without addr", func(c *Config) { c.Ingest.WebSocket.Addr = "" }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_EmptyModelKindAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.PreferredKind = ""
	assert.NoError(t, cfg.Validate())
}

func TestSamplingIntervals_TypedKeys(t *testing.T) {
	cfg := DefaultConfig()
	intervals := cfg.Pipeline.SamplingIntervals()

	assert.Equal(t, 250*time.Millisecond, intervals[event.KindScroll])
	assert.Equal(t, 500*time.Millisecond, intervals[event.KindKeystrokeBurst])
}
