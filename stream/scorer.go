package stream

import (
	"context"

	"github.com/c360/focusstream/event"
	"github.com/c360/focusstream/feature"
	"github.com/c360/focusstream/model"
)

// Scorer turns a flushed window into a prediction. The default scorer
// runs in-process; a remote implementation may fail, in which case the
// pipeline treats the window like a persistence failure and requeues it.
type Scorer interface {
	Score(ctx context.Context, window []event.Event, fctx feature.Context) (model.Prediction, feature.Vector, error)
}

// localScorer extracts features and predicts through the model manager
// in-process. It never fails.
type localScorer struct {
	models *model.Manager
}

func (s localScorer) Score(_ context.Context, window []event.Event, fctx feature.Context) (model.Prediction, feature.Vector, error) {
	features := feature.Extract(window, fctx)
	pred := s.models.Predict(features, dominantDomain(window))
	return pred, features, nil
}

// dominantDomain picks the domain a window should be scored against:
// the most recent page visit's domain, or failing that the domain of
// the last event carrying one.
func dominantDomain(window []event.Event) string {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Kind == event.KindPageVisit {
			if d := window[i].Domain(); d != "" {
				return d
			}
		}
	}
	for i := len(window) - 1; i >= 0; i-- {
		if d := window[i].Domain(); d != "" {
			return d
		}
	}
	return ""
}
