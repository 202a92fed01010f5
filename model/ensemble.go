package model

import (
	"math"

	"github.com/c360/focusstream/feature"
)

const ensembleVersion = "ensemble/1.0.0"

// Estimator is one independent scoring function inside the ensemble
type Estimator func(features feature.Vector, domain string) float64

// Ensemble aggregates independent estimators by averaging. Confidence is
// derived from agreement: 1 - sqrt(mean((pi - pbar)^2)), clamped to [0,1],
// so unanimous estimators score high confidence and split ones low.
type Ensemble struct {
	estimators []Estimator
}

// NewEnsemble builds an ensemble over the given estimators, defaulting to
// the built-in set when none are supplied.
func NewEnsemble(estimators ...Estimator) *Ensemble {
	if len(estimators) == 0 {
		estimators = defaultEstimators()
	}
	return &Ensemble{estimators: estimators}
}

// Predict averages the estimators and derives confidence from their variance
func (e *Ensemble) Predict(features feature.Vector, domain string) (float64, float64) {
	scores := make([]float64, len(e.estimators))
	var sum float64
	for i, est := range e.estimators {
		scores[i] = clamp01(est(features, domain))
		sum += scores[i]
	}

	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))

	confidence := clamp01(1 - math.Sqrt(variance))

	return clamp01(mean), confidence
}

// Version returns the strategy version string
func (e *Ensemble) Version() string {
	return ensembleVersion
}

// defaultEstimators returns the built-in estimator set: domain reputation,
// passive scroll rate, navigation churn, and engagement depth.
func defaultEstimators() []Estimator {
	domainList := NewRuleBased(nil, nil)

	return []Estimator{
		// Domain reputation, reusing the rule-based lists
		func(features feature.Vector, domain string) float64 {
			p, _ := domainList.Predict(features, domain)
			return p
		},
		// Passive scrolling: high rates without clicks read as drift
		func(features feature.Vector, _ string) float64 {
			return sigmoid((features.ScrollRatePerMinute - 20) / 15)
		},
		// Navigation churn: rapid tab switching and many distinct domains
		func(features feature.Vector, _ string) float64 {
			churn := features.TabSwitchCount + features.DistinctDomainVisits
			return sigmoid((churn - 4) / 3)
		},
		// Engagement depth: typing and focused interaction pull the
		// score toward attention
		func(features feature.Vector, _ string) float64 {
			engaged := features.KeystrokeBurstCount*2 + features.ClickCount
			return 1 - sigmoid((engaged-3)/3)
		},
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
