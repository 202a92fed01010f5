// Package natsclient manages the NATS connection and JetStream handles the
// pipeline uses for durable storage and log publishing.
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/pkg/retry"
)

// ConnectionStatus represents the client's connection state
type ConnectionStatus int

const (
	// StatusDisconnected means no server connection exists
	StatusDisconnected ConnectionStatus = iota
	// StatusConnecting means a connection attempt is in progress
	StatusConnecting
	// StatusConnected means the connection is healthy
	StatusConnected
	// StatusClosed means the client was closed and will not reconnect
	StatusClosed
)

// String returns a human-readable status name
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client wraps a NATS connection with lifecycle management and JetStream
// access. All methods are safe for concurrent use.
type Client struct {
	url           string
	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	logger        *slog.Logger

	mu     sync.RWMutex
	conn   *nats.Conn
	js     jetstream.JetStream
	status ConnectionStatus
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithName sets the client connection name reported to the server
func WithName(name string) ClientOption {
	return func(c *Client) { c.clientName = name }
}

// WithMaxReconnects bounds automatic reconnect attempts (-1 = unlimited)
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the delay between reconnect attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) { c.reconnectWait = d }
}

// WithTimeout sets the per-operation timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates an unconnected client for url
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:           url,
		clientName:    "focusstream",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		logger:        slog.Default(),
		status:        StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the server connection, retrying with backoff until
// ctx is cancelled or the quick-retry budget is exhausted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Client", "Connect", "check status")
	}
	if c.conn != nil && c.conn.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	natsOpts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusDisconnected)
			if err != nil {
				c.logger.Warn("NATS disconnected", "component", "natsclient", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.setStatus(StatusConnected)
			c.logger.Info("NATS reconnected", "component", "natsclient", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
		return nats.Connect(c.url, natsOpts...)
	})
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "dial NATS server")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "create JetStream context")
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.status = StatusConnected
	c.mu.Unlock()

	c.logger.Info("NATS connected", "component", "natsclient", "url", c.url)
	return nil
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusClosed {
		return nil
	}

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.logger.Warn("NATS drain failed, closing hard", "component", "natsclient", "error", err)
			c.conn.Close()
		}
		c.conn = nil
		c.js = nil
	}

	c.status = StatusClosed
	return nil
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// IsHealthy reports whether the connection is established and alive
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Conn returns the underlying NATS connection, or nil before Connect
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Publish sends data on subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Publish", "check connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish to "+subject)
	}
	return nil
}

// CreateKeyValueBucket creates the KV bucket, or returns the existing one
// when the name is already taken.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "CreateKeyValueBucket", "check connection")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	kv, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if isAlreadyExistsError(err) {
			return js.KeyValue(ctx, cfg.Bucket)
		}
		return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "create bucket "+cfg.Bucket)
	}
	return kv, nil
}

// KeyValueBucket looks up an existing KV bucket
func (c *Client) KeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "KeyValueBucket", "check connection")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	kv, err := js.KeyValue(ctx, name)
	if err != nil {
		return nil, wrapBucketLookup(err, name)
	}
	return kv, nil
}

// wrapBucketLookup maps a JetStream KV lookup failure onto the package
// taxonomy: a missing bucket is an operator error, everything else is
// worth retrying.
func wrapBucketLookup(err error, name string) error {
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return errors.WrapInvalid(errors.ErrBucketNotFound, "Client", "KeyValueBucket", "lookup bucket "+name)
	}
	return errors.WrapTransient(err, "Client", "KeyValueBucket", "lookup bucket "+name)
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "already exists") ||
		strings.Contains(err.Error(), "already in use")
}
