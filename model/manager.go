package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/feature"
)

// Conservative default returned when no strategy is usable. The pipeline
// must never halt because scoring is unavailable.
const (
	fallbackProbability = 0.5
	fallbackConfidence  = 0.1
	fallbackVersion     = "fallback/none"
)

// Manager selects and caches prediction strategies. Exactly one strategy
// is active at a time; previously loaded strategies stay cached so
// reactivation needs no reload. The manager only activates what it is
// told — model preference is configuration owned by the caller.
type Manager struct {
	mu     sync.RWMutex
	cache  map[Kind]Strategy
	active Strategy
	kind   Kind

	loader ArtifactLoader
	clk    clock.Clock
	logger *slog.Logger

	distractionDomains []string
	productiveDomains  []string
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithClock injects a clock for Prediction.ProducedAt
func WithClock(clk clock.Clock) ManagerOption {
	return func(m *Manager) { m.clk = clk }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithArtifactLoader enables KindExternal by supplying the loader that
// fetches the trained artifact.
func WithArtifactLoader(loader ArtifactLoader) ManagerOption {
	return func(m *Manager) { m.loader = loader }
}

// WithDomainLists overrides the rule-based strategy's domain lists
func WithDomainLists(distraction, productive []string) ManagerOption {
	return func(m *Manager) {
		m.distractionDomains = distraction
		m.productiveDomains = productive
	}
}

// NewManager creates a Manager with no active strategy. Callers activate
// one via LoadModel; until then Predict returns the conservative default.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		cache:  make(map[Kind]Strategy),
		clk:    clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadModel activates the strategy for kind, constructing it on first
// use and reactivating the cached instance afterwards. On failure the
// previously active strategy (if any) remains active and usable; the
// returned error is classified transient so callers may retry.
func (m *Manager) LoadModel(ctx context.Context, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.cache[kind]; ok {
		m.active = cached
		m.kind = kind
		return nil
	}

	strategy, err := m.buildLocked(ctx, kind)
	if err != nil {
		m.logger.Warn("model load failed, keeping previous strategy",
			"component", "ModelManager",
			"requested_kind", kind.String(),
			"active_version", m.activeVersionLocked(),
			"error", err)
		return err
	}

	m.cache[kind] = strategy
	m.active = strategy
	m.kind = kind

	m.logger.Info("model activated",
		"component", "ModelManager",
		"kind", kind.String(),
		"version", strategy.Version())

	return nil
}

func (m *Manager) buildLocked(ctx context.Context, kind Kind) (Strategy, error) {
	switch kind {
	case KindRuleBased:
		return NewRuleBased(m.distractionDomains, m.productiveDomains), nil
	case KindEnsemble:
		return NewEnsemble(), nil
	case KindExternal:
		if m.loader == nil {
			return nil, errors.WrapTransient(errors.ErrModelLoadFailed,
				"ModelManager", "LoadModel", "no artifact loader configured")
		}
		strategy, err := m.loader.Load(ctx)
		if err != nil {
			return nil, errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrModelLoadFailed, err),
				"ModelManager", "LoadModel", "load external artifact")
		}
		return strategy, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownModelKind, kind),
			"ModelManager", "LoadModel", "resolve model kind")
	}
}

// Predict scores the feature vector with the active strategy. When no
// strategy is active it returns the conservative default rather than an
// error — scoring unavailability never propagates.
func (m *Manager) Predict(features feature.Vector, domain string) Prediction {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()

	now := m.clk.Now()

	if active == nil {
		return Prediction{
			Probability:  fallbackProbability,
			Confidence:   fallbackConfidence,
			ModelVersion: fallbackVersion,
			ProducedAt:   now,
		}
	}

	probability, confidence := active.Predict(features, domain)

	return Prediction{
		Probability:  clamp01(probability),
		Confidence:   clamp01(confidence),
		ModelVersion: active.Version(),
		ProducedAt:   now,
	}
}

// ActiveKind returns the currently active strategy kind, or "" when none
func (m *Manager) ActiveKind() Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.kind
}

// ActiveVersion returns the active strategy's version, or the fallback marker
func (m *Manager) ActiveVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeVersionLocked()
}

func (m *Manager) activeVersionLocked() string {
	if m.active == nil {
		return fallbackVersion
	}
	return m.active.Version()
}
