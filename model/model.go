// Package model implements the scoring engine: interchangeable prediction
// strategies behind a single manager that selects, caches, and degrades
// gracefully when a strategy is unavailable.
package model

import (
	"context"
	"time"

	"github.com/c360/focusstream/feature"
)

// Kind identifies a prediction strategy
type Kind string

const (
	// KindRuleBased is the zero-dependency domain-list heuristic
	KindRuleBased Kind = "rule_based"
	// KindEnsemble aggregates several independent estimators
	KindEnsemble Kind = "ensemble"
	// KindExternal is the extension point for learned models loaded
	// from external artifacts
	KindExternal Kind = "external"
)

// IsValid reports whether the kind names a known strategy
func (k Kind) IsValid() bool {
	switch k {
	case KindRuleBased, KindEnsemble, KindExternal:
		return true
	default:
		return false
	}
}

// String returns the kind name
func (k Kind) String() string {
	return string(k)
}

// Prediction is the scoring engine's output: a distraction probability
// with a confidence estimate. Ephemeral; consumed immediately by the
// external gating policy.
type Prediction struct {
	Probability  float64   `json:"probability"`
	Confidence   float64   `json:"confidence"`
	ModelVersion string    `json:"model_version"`
	ProducedAt   time.Time `json:"produced_at"`
}

// Strategy is the fixed capability set every prediction strategy exposes.
// Predict must be deterministic for a given feature vector and domain.
type Strategy interface {
	Predict(features feature.Vector, domain string) (probability, confidence float64)
	Version() string
}

// ArtifactLoader loads an externally trained model artifact and returns a
// usable strategy. Loading is an explicit request/response with the
// caller's context bounding it; implementations must respect cancellation.
type ArtifactLoader interface {
	Load(ctx context.Context) (Strategy, error)
}

// clamp01 clamps v into [0,1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
