package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/event"
	"github.com/c360/focusstream/storage"
)

func ev(kind event.Kind, session string, seq uint64, ts int64) event.Event {
	return event.Event{Kind: kind, SessionID: session, SequenceID: seq, Timestamp: ts}
}

func TestStoreAndQueryAll(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, []event.Event{
		ev(event.KindPageVisit, "s1", 0, 100),
		ev(event.KindScroll, "s1", 1, 200),
	}))

	got, err := s.Query(ctx, storage.Criteria{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].SequenceID)
}

func TestQuery_Filters(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, []event.Event{
		ev(event.KindPageVisit, "s1", 0, 100),
		ev(event.KindScroll, "s1", 1, 200),
		ev(event.KindScroll, "s2", 0, 300),
	}))

	bySession, err := s.Query(ctx, storage.Criteria{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	byKind, err := s.Query(ctx, storage.Criteria{Kind: event.KindScroll})
	require.NoError(t, err)
	assert.Len(t, byKind, 2)

	byTime, err := s.Query(ctx, storage.Criteria{SinceMS: 200, UntilMS: 300})
	require.NoError(t, err)
	require.Len(t, byTime, 1)
	assert.Equal(t, int64(200), byTime[0].Timestamp)

	limited, err := s.Query(ctx, storage.Criteria{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFailNext(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.FailNext(2, nil)

	err := s.Store(ctx, []event.Event{ev(event.KindClick, "s1", 0, 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.True(t, errors.IsTransient(err))

	require.Error(t, s.Store(ctx, []event.Event{ev(event.KindClick, "s1", 0, 1)}))
	require.NoError(t, s.Store(ctx, []event.Event{ev(event.KindClick, "s1", 0, 1)}))
	assert.Equal(t, 1, s.Len(), "failed batches are not partially applied")
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Store(ctx, []event.Event{ev(event.KindClick, "s1", 0, 1)})
	assert.Error(t, err)
	assert.Zero(t, s.Len())
}
