// Package memstore provides an in-memory EventStore. It backs single-host
// deployments that opt out of NATS and doubles as the store used in tests,
// including fault injection for flush failure paths.
package memstore

import (
	"context"
	"sync"

	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/event"
	"github.com/c360/focusstream/storage"
)

// Store is a mutex-guarded in-memory event store
type Store struct {
	mu     sync.RWMutex
	events []event.Event

	failNext int
	failErr  error
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{}
}

// FailNext makes the next n Store calls fail with err (or
// errors.ErrStorageUnavailable when err is nil). Used by tests to
// exercise the requeue-on-failure path.
func (s *Store) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = errors.ErrStorageUnavailable
	}
	s.failNext = n
	s.failErr = err
}

// Store appends the batch atomically
func (s *Store) Store(ctx context.Context, events []event.Event) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "MemStore", "Store", "check context")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return errors.WrapTransient(s.failErr, "MemStore", "Store", "persist batch")
	}

	s.events = append(s.events, events...)
	return nil
}

// Query returns events matching the criteria in insertion order
func (s *Store) Query(ctx context.Context, criteria storage.Criteria) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "MemStore", "Query", "check context")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Event
	for _, ev := range s.events {
		if !criteria.Matches(ev) {
			continue
		}
		out = append(out, ev)
		if criteria.Limit > 0 && len(out) == criteria.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored events
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Events returns a copy of all stored events in insertion order
func (s *Store) Events() []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

var _ storage.EventStore = (*Store)(nil)
