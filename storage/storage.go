// Package storage defines the durable store contract the pipeline flushes
// batches into, plus the query criteria for reading events back.
package storage

import (
	"context"

	"github.com/c360/focusstream/event"
)

// Criteria selects events on Query. Zero-valued fields do not filter.
type Criteria struct {
	SessionID string
	Kind      event.Kind
	SinceMS   int64 // inclusive lower bound on Event.Timestamp
	UntilMS   int64 // exclusive upper bound on Event.Timestamp
	Limit     int   // maximum events returned; 0 = unlimited
}

// Matches reports whether ev satisfies the criteria (ignoring Limit)
func (c Criteria) Matches(ev event.Event) bool {
	if c.SessionID != "" && ev.SessionID != c.SessionID {
		return false
	}
	if c.Kind != "" && ev.Kind != c.Kind {
		return false
	}
	if c.SinceMS != 0 && ev.Timestamp < c.SinceMS {
		return false
	}
	if c.UntilMS != 0 && ev.Timestamp >= c.UntilMS {
		return false
	}
	return true
}

// EventStore is the pipeline's view of durable persistence. Store must be
// all-or-nothing for the given batch: on error the caller assumes nothing
// was persisted and requeues the whole batch.
type EventStore interface {
	Store(ctx context.Context, events []event.Event) error
	Query(ctx context.Context, criteria Criteria) ([]event.Event, error)
}
