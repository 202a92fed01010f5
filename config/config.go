// Package config defines the focusstream application configuration:
// YAML-backed structs with defaults, validation, and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/event"
	"github.com/c360/focusstream/model"
)

// Config represents the complete application configuration
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Model    ModelConfig    `yaml:"model"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PipelineConfig tunes the event stream buffer and session bookkeeping
type PipelineConfig struct {
	BufferCapacity  int                      `yaml:"buffer_capacity"`
	FlushInterval   time.Duration            `yaml:"flush_interval"`
	IdleTimeout     time.Duration            `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration            `yaml:"shutdown_timeout"`
	Sampling        map[string]time.Duration `yaml:"sampling"` // kind -> min inter-sample interval
}

// ModelConfig selects the preferred scoring strategy. The pipeline only
// activates what this names; it never reads preference storage itself.
type ModelConfig struct {
	PreferredKind      string   `yaml:"preferred_kind"`
	DistractionDomains []string `yaml:"distraction_domains"`
	ProductiveDomains  []string `yaml:"productive_domains"`
}

// NATSConfig defines the NATS connection and event bucket
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Bucket        string        `yaml:"bucket"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// MetricsConfig defines the Prometheus exposition endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// IngestConfig defines producer-facing transports
type IngestConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig defines the WebSocket ingest listener
type WebSocketConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	Path           string `yaml:"path"`
	MaxConnections int    `yaml:"max_connections"`
}

// LoggingConfig defines log output
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is supplied
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			BufferCapacity:  500,
			FlushInterval:   30 * time.Second,
			IdleTimeout:     30 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			Sampling: map[string]time.Duration{
				event.KindScroll.String():         250 * time.Millisecond,
				event.KindKeystrokeBurst.String(): 500 * time.Millisecond,
			},
		},
		Model: ModelConfig{
			PreferredKind: model.KindRuleBased.String(),
		},
		NATS: NATSConfig{
			Enabled:       true,
			URL:           "nats://localhost:4222",
			Bucket:        "focusstream_events",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Ingest: IngestConfig{
			WebSocket: WebSocketConfig{
				Enabled:        true,
				Addr:           ":8098",
				Path:           "/ingest",
				MaxConnections: 32,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, layered over DefaultConfig, then
// applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "parse config file")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers FOCUSSTREAM_* environment variables over the config
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FOCUSSTREAM_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("FOCUSSTREAM_NATS_BUCKET"); v != "" {
		c.NATS.Bucket = v
	}
	if v := os.Getenv("FOCUSSTREAM_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("FOCUSSTREAM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FOCUSSTREAM_MODEL_KIND"); v != "" {
		c.Model.PreferredKind = v
	}
}

// Validate checks the whole configuration tree
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NATSConfig", "Validate", "nats.url is required when nats is enabled")
	}
	if c.Ingest.WebSocket.Enabled {
		if c.Ingest.WebSocket.Addr == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "WebSocketConfig", "Validate", "ingest.websocket.addr is required")
		}
		if c.Ingest.WebSocket.MaxConnections < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "WebSocketConfig", "Validate", "max_connections cannot be negative")
		}
	}
	return nil
}

// Validate checks pipeline tuning values
func (p *PipelineConfig) Validate() error {
	if p.BufferCapacity <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PipelineConfig", "Validate", "buffer_capacity must be positive")
	}
	if p.FlushInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PipelineConfig", "Validate", "flush_interval must be positive")
	}
	if p.IdleTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PipelineConfig", "Validate", "idle_timeout must be positive")
	}
	for kind, interval := range p.Sampling {
		if !event.Kind(kind).IsValid() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: sampling interval for unknown kind %q", errors.ErrInvalidConfig, kind),
				"PipelineConfig", "Validate", "check sampling kinds")
		}
		if interval < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "PipelineConfig", "Validate",
				fmt.Sprintf("sampling interval for %q cannot be negative", kind))
		}
	}
	return nil
}

// Validate checks the model preference
func (m *ModelConfig) Validate() error {
	if m.PreferredKind == "" {
		return nil // pipeline falls back to the conservative default
	}
	if !model.Kind(m.PreferredKind).IsValid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrInvalidConfig, m.PreferredKind),
			"ModelConfig", "Validate", "check preferred model kind")
	}
	return nil
}

// SamplingIntervals converts the configured sampling map to event kinds
func (p *PipelineConfig) SamplingIntervals() map[event.Kind]time.Duration {
	out := make(map[event.Kind]time.Duration, len(p.Sampling))
	for kind, interval := range p.Sampling {
		out[event.Kind(kind)] = interval
	}
	return out
}
