// Package session owns the live session identity and the per-session
// monotonic sequence counter for the event pipeline.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/c360/focusstream/event"
)

// DefaultIdleTimeout is how long activity may pause before the next
// stamped event starts a fresh session.
const DefaultIdleTimeout = 30 * time.Minute

// Session identifies a contiguous period of activity. Exactly one
// session is live at a time; rotation replaces it atomically.
type Session struct {
	ID              string
	StartedAt       time.Time
	LastActivityAt  time.Time
	SequenceCounter uint64
}

// Manager stamps events with the live session ID and the next sequence
// number, rotating the session when the idle timeout elapses. Rotation is
// atomic with respect to stamping: once the timeout is detected no event
// is stamped against the stale session.
type Manager struct {
	mu          sync.Mutex
	clk         clock.Clock
	idleTimeout time.Duration
	current     Session
	rotations   uint64
	logger      *slog.Logger
	onRotate    func(old, new Session)
}

// Option configures a Manager
type Option func(*Manager)

// WithClock injects a clock (tests use clock.NewMock())
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clk = clk }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithRotateHook registers a callback invoked after each rotation,
// outside the manager's lock.
func WithRotateHook(fn func(old, new Session)) Option {
	return func(m *Manager) { m.onRotate = fn }
}

// NewManager creates a Manager with a live initial session.
// A non-positive idleTimeout falls back to DefaultIdleTimeout.
func NewManager(idleTimeout time.Duration, opts ...Option) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	m := &Manager{
		clk:         clock.New(),
		idleTimeout: idleTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	now := m.clk.Now()
	m.current = newSession(now)

	return m
}

func newSession(now time.Time) Session {
	return Session{
		ID:             uuid.NewString(),
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// Stamp assigns the live session ID and the next sequence number to a
// validated event, rotating first if the idle timeout has elapsed.
// A zero event timestamp is filled with the stamp time.
func (m *Manager) Stamp(ev event.Event) event.Event {
	m.mu.Lock()

	now := m.clk.Now()
	old, rotated := m.rotateIfIdleLocked(now)

	ev.SessionID = m.current.ID
	ev.SequenceID = m.current.SequenceCounter
	m.current.SequenceCounter++
	m.current.LastActivityAt = now

	if ev.Timestamp == 0 {
		ev.Timestamp = now.UnixMilli()
	}

	current := m.current
	m.mu.Unlock()

	if rotated {
		m.logger.Info("session rotated",
			"component", "SessionManager",
			"old_session_id", old.ID,
			"new_session_id", current.ID)
		if m.onRotate != nil {
			m.onRotate(old, current)
		}
	}

	return ev
}

// RotateIfIdle starts a new session if now is past the idle timeout.
// Returns true when a rotation happened.
func (m *Manager) RotateIfIdle(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, rotated := m.rotateIfIdleLocked(now)
	return rotated
}

func (m *Manager) rotateIfIdleLocked(now time.Time) (Session, bool) {
	if now.Sub(m.current.LastActivityAt) <= m.idleTimeout {
		return Session{}, false
	}
	old := m.current
	m.current = newSession(now)
	m.rotations++
	return old, true
}

// Snapshot returns a copy of the live session
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Rotations returns how many rotations have occurred since construction
func (m *Manager) Rotations() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotations
}

// IdleTimeout returns the configured idle timeout
func (m *Manager) IdleTimeout() time.Duration {
	return m.idleTimeout
}
