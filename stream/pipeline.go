// Package stream implements the event pipeline core: the bounded stream
// buffer with per-kind sampling, the flush triggers (capacity, timer,
// explicit, shutdown), and the hand-off to persistence and scoring.
package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/c360/focusstream/component"
	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/event"
	"github.com/c360/focusstream/feature"
	"github.com/c360/focusstream/metric"
	"github.com/c360/focusstream/model"
	"github.com/c360/focusstream/pkg/retry"
	"github.com/c360/focusstream/session"
	"github.com/c360/focusstream/storage"
)

// FlushTrigger labels what caused a flush
type FlushTrigger string

const (
	// TriggerCapacity is a synchronous flush forced by a full buffer
	TriggerCapacity FlushTrigger = "capacity"
	// TriggerTimer is the periodic background flush
	TriggerTimer FlushTrigger = "timer"
	// TriggerExplicit is a caller-requested flush
	TriggerExplicit FlushTrigger = "explicit"
	// TriggerShutdown is the final drain during Stop
	TriggerShutdown FlushTrigger = "shutdown"
)

// BatchResult reports the outcome of one flush attempt
type BatchResult struct {
	Trigger    FlushTrigger
	Flushed    int
	Requeued   int
	Dropped    int
	Prediction *model.Prediction
	Features   *feature.Vector
	Err        error
}

// SessionInfo is a read-only snapshot of pipeline state for diagnostics
type SessionInfo struct {
	SessionID       string
	SequenceCounter uint64
	BufferLength    int
	LastFlushAt     time.Time
	EventsLost      uint64
}

// PredictionSink receives each prediction as it is produced. The push is
// one-way: the pipeline makes no assumptions about what the receiver
// does with it.
type PredictionSink func(model.Prediction, feature.Vector)

// Config holds the pipeline tuning knobs
type Config struct {
	BufferCapacity int
	FlushInterval  time.Duration
	IdleTimeout    time.Duration
	Sampling       map[event.Kind]time.Duration
	FlushRetry     retry.Config
}

// DefaultConfig returns pipeline defaults matching the top-level
// configuration defaults.
func DefaultConfig() Config {
	return Config{
		BufferCapacity: 500,
		FlushInterval:  30 * time.Second,
		IdleTimeout:    session.DefaultIdleTimeout,
		Sampling: map[event.Kind]time.Duration{
			event.KindScroll:         250 * time.Millisecond,
			event.KindKeystrokeBurst: 500 * time.Millisecond,
		},
		FlushRetry: retry.DefaultConfig(),
	}
}

// Pipeline is the single consumer of raw events. It validates, samples,
// stamps and buffers each event, and drains the buffer to storage and
// scoring on capacity, timer, explicit or shutdown triggers.
//
// trackMu serializes the enqueue path so the buffer never exceeds
// capacity between two accepted events: a capacity flush completes
// before the triggering TrackEvent returns. flushMu serializes flushes;
// a flush requested while one is in flight waits and then drains
// whatever accumulated, so flushes are coalesced, never interleaved.
type Pipeline struct {
	cfg      Config
	clk      clock.Clock
	logger   *slog.Logger
	metrics  *metric.Metrics
	store    storage.EventStore
	scorer   Scorer
	sink     PredictionSink
	sessions *session.Manager
	buffer   *Buffer

	trackMu sync.Mutex
	flushMu sync.Mutex

	stateMu sync.Mutex
	state   component.State

	closed atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

var _ component.Lifecycle = (*Pipeline)(nil)

// Option configures a Pipeline
type Option func(*Pipeline)

// WithClock injects a clock (tests use clock.NewMock())
func WithClock(clk clock.Clock) Option {
	return func(p *Pipeline) { p.clk = clk }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics attaches pipeline metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithSink registers the prediction receiver
func WithSink(sink PredictionSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithScorer overrides the in-process scorer, e.g. with a remote one
func WithScorer(s Scorer) Option {
	return func(p *Pipeline) { p.scorer = s }
}

// New creates a Pipeline draining into store and scoring through models
func New(cfg Config, store storage.EventStore, models *model.Manager, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Pipeline", "New", "event store required")
	}

	def := DefaultConfig()
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = def.BufferCapacity
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.Sampling == nil {
		cfg.Sampling = def.Sampling
	}
	if cfg.FlushRetry.MaxAttempts == 0 {
		cfg.FlushRetry = def.FlushRetry
	}

	p := &Pipeline{
		cfg:    cfg,
		clk:    clock.New(),
		logger: slog.Default(),
		store:  store,
		state:  component.StateCreated,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.scorer == nil {
		if models == nil {
			return nil, errors.WrapFatal(errors.ErrMissingConfig, "Pipeline", "New", "model manager or scorer required")
		}
		p.scorer = localScorer{models: models}
	}

	p.buffer = NewBuffer(cfg.BufferCapacity, cfg.Sampling)
	p.sessions = session.NewManager(cfg.IdleTimeout,
		session.WithClock(p.clk),
		session.WithLogger(p.logger),
		session.WithRotateHook(func(_, _ session.Session) {
			if p.metrics != nil {
				p.metrics.RecordSessionRotation()
			}
		}))

	return p, nil
}

// Name implements component.Lifecycle
func (p *Pipeline) Name() string { return "pipeline" }

// Initialize implements component.Lifecycle
func (p *Pipeline) Initialize() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state != component.StateCreated {
		return errors.Wrap(fmt.Errorf("cannot initialize from state %s", p.state),
			"Pipeline", "Initialize", "state transition")
	}
	p.state = component.StateInitialized
	return nil
}

// Start launches the periodic flush timer. The pipeline accepts events
// before Start; only the timer trigger requires it.
func (p *Pipeline) Start(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state == component.StateStarted {
		return errors.Wrap(errors.ErrAlreadyStarted, "Pipeline", "Start", "state transition")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.timerLoop(runCtx)

	p.state = component.StateStarted
	if p.metrics != nil {
		p.metrics.RecordComponentStatus(p.Name(), int(component.StateStarted))
	}
	p.logger.Info("pipeline started",
		"component", "Pipeline",
		"buffer_capacity", p.cfg.BufferCapacity,
		"flush_interval", p.cfg.FlushInterval.String())
	return nil
}

func (p *Pipeline) timerLoop(ctx context.Context) {
	defer close(p.done)

	ticker := p.clk.Ticker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := p.flush(ctx, TriggerTimer)
			if res.Err != nil {
				p.logger.Warn("timer flush failed",
					"component", "Pipeline",
					"requeued", res.Requeued,
					"dropped", res.Dropped,
					"error", res.Err.Error())
			}
		}
	}
}

// Stop drains the buffer one final time and shuts the timer down. After
// Stop returns, TrackEvent rejects new events.
func (p *Pipeline) Stop(timeout time.Duration) error {
	p.stateMu.Lock()
	if p.state == component.StateStopped {
		p.stateMu.Unlock()
		return nil
	}
	cancel := p.cancel
	done := p.done
	p.state = component.StateStopped
	p.stateMu.Unlock()

	p.closed.Store(true)

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-p.clk.After(timeout):
			return errors.WrapTransient(errors.ErrConnectionTimeout, "Pipeline", "Stop", "wait for timer loop")
		}
	}

	ctx, cancelFlush := context.WithTimeout(context.Background(), timeout)
	defer cancelFlush()

	res := p.flush(ctx, TriggerShutdown)
	if p.metrics != nil {
		p.metrics.RecordComponentStatus(p.Name(), int(component.StateStopped))
	}
	if res.Err != nil {
		return errors.Wrap(res.Err, "Pipeline", "Stop", "final drain")
	}

	p.logger.Info("pipeline stopped", "component", "Pipeline", "flushed", res.Flushed)
	return nil
}

// TrackEvent validates, samples, stamps and buffers one raw event.
// It returns the stamped canonical event, or (nil, nil) when the event
// was suppressed by sampling, or an error when validation rejects it.
// If accepting the event fills the buffer, the flush runs synchronously
// before TrackEvent returns; a failed capacity flush requeues internally
// and does not fail the accepted event.
func (p *Pipeline) TrackEvent(ctx context.Context, raw event.Raw) (*event.Event, error) {
	if p.closed.Load() {
		return nil, errors.Wrap(errors.ErrBufferClosed, "Pipeline", "TrackEvent", "accept event")
	}

	ev, err := event.Validate(raw)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordEventRejected(rejectReason(err))
		}
		return nil, err
	}

	p.trackMu.Lock()
	defer p.trackMu.Unlock()

	now := p.clk.Now()
	if !p.buffer.Sample(raw.SourceContext, ev.Kind, now) {
		if p.metrics != nil {
			p.metrics.RecordEventSampledOut(ev.Kind.String())
		}
		return nil, nil
	}

	stamped := p.sessions.Stamp(ev)
	p.buffer.Append(stamped)

	if p.metrics != nil {
		p.metrics.RecordEventReceived(stamped.Kind.String())
		p.metrics.RecordBufferSize(p.buffer.Len())
	}

	if p.buffer.AtCapacity() {
		res := p.flush(ctx, TriggerCapacity)
		if res.Err != nil {
			p.logger.Warn("capacity flush failed",
				"component", "Pipeline",
				"requeued", res.Requeued,
				"dropped", res.Dropped,
				"error", res.Err.Error())
		}
	}

	return &stamped, nil
}

// Flush drains the buffer on demand. An empty buffer is a no-op success.
func (p *Pipeline) Flush(ctx context.Context) BatchResult {
	return p.flush(ctx, TriggerExplicit)
}

func (p *Pipeline) flush(ctx context.Context, trigger FlushTrigger) BatchResult {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	res := BatchResult{Trigger: trigger}
	start := p.clk.Now()

	batch := p.buffer.TakeAll()
	if len(batch) == 0 {
		return res
	}

	snap := p.sessions.Snapshot()
	fctx := feature.Context{
		SessionID:        snap.ID,
		SessionStartedMS: snap.StartedAt.UnixMilli(),
	}
	if batch[0].SessionID != snap.ID {
		// Window predates the current session; anchor on its own stamps.
		fctx = feature.Context{
			SessionID:        batch[0].SessionID,
			SessionStartedMS: batch[0].Timestamp,
		}
	}

	if err := retry.Do(ctx, p.cfg.FlushRetry, func() error {
		return p.store.Store(ctx, batch)
	}); err != nil {
		return p.failFlush(res, batch, start,
			errors.WrapTransient(err, "Pipeline", "flush", "persist batch"))
	}

	pred, features, err := p.scorer.Score(ctx, batch, fctx)
	if err != nil {
		return p.failFlush(res, batch, start,
			errors.WrapTransient(err, "Pipeline", "flush", "score window"))
	}

	p.buffer.MarkFlushed(p.clk.Now())

	res.Flushed = len(batch)
	res.Prediction = &pred
	res.Features = &features

	if p.metrics != nil {
		p.metrics.RecordFlush(string(trigger), "success", len(batch), p.clk.Now().Sub(start))
		p.metrics.RecordBufferSize(p.buffer.Len())
		p.metrics.RecordPrediction(pred.ModelVersion, pred.Probability)
	}
	p.logger.Debug("flush complete",
		"component", "Pipeline",
		"trigger", string(trigger),
		"batch_size", len(batch),
		"probability", pred.Probability)

	if p.sink != nil {
		p.sink(pred, features)
	}

	return res
}

// failFlush requeues a failed batch ahead of anything enqueued during
// the attempt, dropping the oldest non-retried events if that overflows
// capacity. lastFlushAt is not advanced.
func (p *Pipeline) failFlush(res BatchResult, batch []event.Event, start time.Time, err error) BatchResult {
	dropped := p.buffer.Requeue(batch)

	res.Err = err
	res.Requeued = len(batch)
	res.Dropped = dropped

	if p.metrics != nil {
		p.metrics.RecordFlush(string(res.Trigger), "failed", len(batch), p.clk.Now().Sub(start))
		p.metrics.RecordBufferSize(p.buffer.Len())
		if dropped > 0 {
			p.metrics.RecordEventsLost(dropped)
		}
	}
	return res
}

// CleanupSource releases sampling state held for a source context,
// called when the originating tab or page closes.
func (p *Pipeline) CleanupSource(source string) {
	p.buffer.CleanupSource(source)
}

// SessionInfo returns a diagnostic snapshot of the live session and buffer
func (p *Pipeline) SessionInfo() SessionInfo {
	snap := p.sessions.Snapshot()
	return SessionInfo{
		SessionID:       snap.ID,
		SequenceCounter: snap.SequenceCounter,
		BufferLength:    p.buffer.Len(),
		LastFlushAt:     p.buffer.LastFlushAt(),
		EventsLost:      p.buffer.Lost(),
	}
}

// State returns the current lifecycle state
func (p *Pipeline) State() component.State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

func rejectReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrUnknownEventKind):
		return "unknown_kind"
	case stderrors.Is(err, errors.ErrMissingSource):
		return "missing_source"
	default:
		return "invalid"
	}
}
