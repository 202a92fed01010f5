package websocket

import (
	"fmt"
	"time"

	"github.com/c360/focusstream/errors"
)

// Config holds the WebSocket ingest server settings
type Config struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`

	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`

	// WriteTimeout bounds how long a reply write may block per client
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxMessageBytes caps a single inbound frame; oversized frames close
	// the connection
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// MaxConnections caps concurrent producer connections; upgrades past
	// the limit are refused at the handshake
	MaxConnections int `yaml:"max_connections"`
}

// DefaultConfig returns the ingest server defaults
func DefaultConfig() Config {
	return Config{
		Addr:            ":8098",
		Path:            "/ingest",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		WriteTimeout:    5 * time.Second,
		MaxMessageBytes: 64 * 1024,
		MaxConnections:  32,
	}
}

// Validate checks the configuration, filling defaults for zero values
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.Path[0] != '/' {
		return errors.WrapInvalid(
			fmt.Errorf("path must start with '/': %q", c.Path),
			"websocket_input", "Validate", "check path")
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = def.WriteBufferSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = def.MaxConnections
	}

	return nil
}
