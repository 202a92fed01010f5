// Package websocket implements the WebSocket ingest server. Browser
// extensions and other producers hold one connection open and submit raw
// events over it; the server validates and tracks each event through the
// pipeline and answers with an ack, a suppression notice, or an error.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/focusstream/component"
	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/event"
	"github.com/c360/focusstream/metric"
	"github.com/c360/focusstream/stream"
)

// Tracker is the slice of the pipeline the ingest server drives
type Tracker interface {
	TrackEvent(ctx context.Context, raw event.Raw) (*event.Event, error)
	Flush(ctx context.Context) stream.BatchResult
	CleanupSource(source string)
	SessionInfo() stream.SessionInfo
}

// MessageEnvelope wraps all inbound WebSocket messages with type
// discrimination. Supported types:
//   - "track": submit one raw event (payload carries the event)
//   - "flush": force a buffer flush
//   - "cleanup": release sampling state (payload carries source_context)
//   - "session_info": request a session/buffer snapshot
type MessageEnvelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the server's answer to one envelope. Type is one of "ack",
// "suppressed", "flush_result", "session_info" or "error"; ID echoes the
// request for correlation.
type Reply struct {
	Type   string       `json:"type"`
	ID     string       `json:"id,omitempty"`
	Event  *event.Event `json:"event,omitempty"`
	Error  string       `json:"error,omitempty"`
	Detail any          `json:"detail,omitempty"`
}

// cleanupPayload is the body of a "cleanup" envelope
type cleanupPayload struct {
	SourceContext string `json:"source_context"`
}

// Metrics holds Prometheus metrics for the ingest server
type Metrics struct {
	messagesReceived  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
}

func newMetrics(registry *metric.Registry, componentName string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "focusstream",
			Subsystem: "websocket_input",
			Name:      "messages_received_total",
			Help:      "Total envelopes received, by type",
		}, []string{"type"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "focusstream",
			Subsystem: "websocket_input",
			Name:      "errors_total",
			Help:      "Total errors answered to producers, by type",
		}, []string{"type"}),

		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "focusstream",
			Subsystem: "websocket_input",
			Name:      "connections_active",
			Help:      "Number of active producer connections",
		}),

		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "focusstream",
			Subsystem: "websocket_input",
			Name:      "connections_total",
			Help:      "Total producer connections accepted",
		}),
	}

	registry.Register(componentName, "messages_received", m.messagesReceived)
	registry.Register(componentName, "errors_total", m.errorsTotal)
	registry.Register(componentName, "connections_active", m.connectionsActive)
	registry.Register(componentName, "connections_total", m.connectionsTotal)

	return m
}

// Input is the WebSocket ingest server component
type Input struct {
	name     string
	config   Config
	tracker  Tracker
	logger   *component.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener

	clients   map[string]*websocket.Conn
	clientsMu sync.Mutex

	started atomic.Bool
	wg      sync.WaitGroup
}

var _ component.Lifecycle = (*Input)(nil)

// NewInput creates the ingest server. The tracker is required; registry
// and logger may be nil.
func NewInput(name string, config Config, tracker Tracker, registry *metric.Registry, logger *component.Logger) (*Input, error) {
	if tracker == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"websocket_input", "NewInput", "tracker required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = component.NewLogger(name, "", nil, nil)
	}

	return &Input{
		name:    name,
		config:  config,
		tracker: tracker,
		logger:  logger,
		metrics: newMetrics(registry, name),
		clients: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(_ *http.Request) bool {
				// Producers are local browser extensions; the server
				// binds loopback in default deployments.
				return true
			},
		},
	}, nil
}

// Name implements component.Lifecycle
func (i *Input) Name() string { return i.name }

// Initialize implements component.Lifecycle
func (i *Input) Initialize() error {
	mux := http.NewServeMux()
	mux.HandleFunc(i.config.Path, i.handleUpgrade)

	i.httpServer = &http.Server{
		Addr:              i.config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Start binds the listen address and begins accepting connections.
// Shutdown is driven by Stop, not ctx: the HTTP server is torn down via
// Shutdown and read loops end when their connections close.
func (i *Input) Start(_ context.Context) error {
	if i.httpServer == nil {
		if err := i.Initialize(); err != nil {
			return err
		}
	}
	if !i.started.CompareAndSwap(false, true) {
		return errors.Wrap(errors.ErrAlreadyStarted, "websocket_input", "Start", "state transition")
	}

	listener, err := net.Listen("tcp", i.config.Addr)
	if err != nil {
		i.started.Store(false)
		return errors.WrapFatal(err, "websocket_input", "Start", "bind listen address")
	}
	i.listener = listener

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			i.logger.Error("ingest server stopped unexpectedly", err)
		}
	}()

	i.logger.Info(fmt.Sprintf("websocket ingest listening on %s%s", listener.Addr(), i.config.Path))
	return nil
}

// Stop shuts the HTTP server down and closes all producer connections
func (i *Input) Stop(timeout time.Duration) error {
	if !i.started.CompareAndSwap(true, false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := i.httpServer.Shutdown(ctx)

	i.clientsMu.Lock()
	for addr, conn := range i.clients {
		conn.Close()
		delete(i.clients, addr)
	}
	i.clientsMu.Unlock()

	i.wg.Wait()

	if err != nil {
		return errors.WrapTransient(err, "websocket_input", "Stop", "shutdown http server")
	}
	return nil
}

// Addr returns the bound listen address, useful when config.Addr holds
// an ephemeral port.
func (i *Input) Addr() string {
	if i.listener == nil {
		return i.config.Addr
	}
	return i.listener.Addr().String()
}

func (i *Input) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	i.clientsMu.Lock()
	active := len(i.clients)
	i.clientsMu.Unlock()
	if active >= i.config.MaxConnections {
		i.countError("connection_limit")
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.logger.Error("websocket upgrade failed", err)
		return
	}

	addr := conn.RemoteAddr().String()

	i.clientsMu.Lock()
	i.clients[addr] = conn
	i.clientsMu.Unlock()

	if i.metrics != nil {
		i.metrics.connectionsTotal.Inc()
		i.metrics.connectionsActive.Inc()
	}

	// The request context dies when this handler returns; the hijacked
	// connection outlives it.
	i.wg.Add(1)
	go i.readLoop(context.Background(), conn, addr)
}

func (i *Input) readLoop(ctx context.Context, conn *websocket.Conn, addr string) {
	defer i.wg.Done()
	defer func() {
		conn.Close()
		i.clientsMu.Lock()
		delete(i.clients, addr)
		i.clientsMu.Unlock()
		if i.metrics != nil {
			i.metrics.connectionsActive.Dec()
		}
	}()

	conn.SetReadLimit(i.config.MaxMessageBytes)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				i.logger.Warn(fmt.Sprintf("producer %s dropped: %v", addr, err))
			}
			return
		}

		var envelope MessageEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			i.countError("malformed_envelope")
			i.writeReply(conn, Reply{Type: "error", Error: "malformed envelope"})
			continue
		}

		if i.metrics != nil {
			i.metrics.messagesReceived.WithLabelValues(envelope.Type).Inc()
		}

		i.writeReply(conn, i.dispatch(ctx, envelope))
	}
}

func (i *Input) dispatch(ctx context.Context, envelope MessageEnvelope) Reply {
	switch envelope.Type {
	case "track":
		return i.handleTrack(ctx, envelope)

	case "flush":
		res := i.tracker.Flush(ctx)
		if res.Err != nil {
			i.countError("flush_failed")
			return Reply{Type: "error", ID: envelope.ID, Error: res.Err.Error()}
		}
		return Reply{Type: "flush_result", ID: envelope.ID, Detail: map[string]any{
			"flushed": res.Flushed,
		}}

	case "cleanup":
		var p cleanupPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil || p.SourceContext == "" {
			i.countError("malformed_payload")
			return Reply{Type: "error", ID: envelope.ID, Error: "cleanup requires source_context"}
		}
		i.tracker.CleanupSource(p.SourceContext)
		return Reply{Type: "ack", ID: envelope.ID}

	case "session_info":
		info := i.tracker.SessionInfo()
		return Reply{Type: "session_info", ID: envelope.ID, Detail: map[string]any{
			"session_id":       info.SessionID,
			"sequence_counter": info.SequenceCounter,
			"buffer_length":    info.BufferLength,
			"last_flush_at":    info.LastFlushAt.UnixMilli(),
			"events_lost":      info.EventsLost,
		}}

	default:
		i.countError("unknown_type")
		return Reply{Type: "error", ID: envelope.ID, Error: fmt.Sprintf("unknown message type %q", envelope.Type)}
	}
}

func (i *Input) handleTrack(ctx context.Context, envelope MessageEnvelope) Reply {
	var raw event.Raw
	if err := json.Unmarshal(envelope.Payload, &raw); err != nil {
		i.countError("malformed_payload")
		return Reply{Type: "error", ID: envelope.ID, Error: "malformed event payload"}
	}

	ev, err := i.tracker.TrackEvent(ctx, raw)
	if err != nil {
		i.countError("rejected")
		return Reply{Type: "error", ID: envelope.ID, Error: err.Error()}
	}
	if ev == nil {
		return Reply{Type: "suppressed", ID: envelope.ID}
	}
	return Reply{Type: "ack", ID: envelope.ID, Event: ev}
}

func (i *Input) writeReply(conn *websocket.Conn, reply Reply) {
	conn.SetWriteDeadline(time.Now().Add(i.config.WriteTimeout))
	if err := conn.WriteJSON(reply); err != nil {
		i.logger.Warn(fmt.Sprintf("reply write failed: %v", err))
	}
}

func (i *Input) countError(errType string) {
	if i.metrics != nil {
		i.metrics.errorsTotal.WithLabelValues(errType).Inc()
	}
}
