package stream

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/event"
	"github.com/c360/focusstream/feature"
	"github.com/c360/focusstream/model"
	"github.com/c360/focusstream/pkg/retry"
	"github.com/c360/focusstream/storage"
	"github.com/c360/focusstream/storage/memstore"
)

// noRetry keeps failure-path tests from sleeping through backoff
var noRetry = retry.Config{MaxAttempts: 1}

func newTestModels(t *testing.T, opts ...model.ManagerOption) *model.Manager {
	t.Helper()
	m := model.NewManager(opts...)
	require.NoError(t, m.LoadModel(context.Background(), model.KindRuleBased))
	return m
}

func newTestPipeline(t *testing.T, cfg Config, opts ...Option) (*Pipeline, *memstore.Store, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	store := memstore.New()

	models := newTestModels(t,
		model.WithClock(mock),
		model.WithDomainLists([]string{"video-site.example"}, nil))

	opts = append([]Option{WithClock(mock)}, opts...)
	p, err := New(cfg, store, models, opts...)
	require.NoError(t, err)

	return p, store, mock
}

func rawClick(source string) event.Raw {
	return event.Raw{Kind: "click", SourceContext: source}
}

func TestPipeline_TrackEventStampsSequence(t *testing.T) {
	p, _, _ := newTestPipeline(t, Config{FlushRetry: noRetry})

	ctx := context.Background()
	var sessionID string
	for i := uint64(0); i < 3; i++ {
		ev, err := p.TrackEvent(ctx, rawClick("example.com"))
		require.NoError(t, err)
		require.NotNil(t, ev)

		assert.Equal(t, i, ev.SequenceID)
		if sessionID == "" {
			sessionID = ev.SessionID
		}
		assert.Equal(t, sessionID, ev.SessionID)
	}

	info := p.SessionInfo()
	assert.Equal(t, sessionID, info.SessionID)
	assert.Equal(t, uint64(3), info.SequenceCounter)
	assert.Equal(t, 3, info.BufferLength)
}

func TestPipeline_TrackEventRejectsInvalid(t *testing.T) {
	p, store, _ := newTestPipeline(t, Config{FlushRetry: noRetry})

	ctx := context.Background()

	ev, err := p.TrackEvent(ctx, event.Raw{Kind: "telepathy", SourceContext: "example.com"})
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, errors.ErrUnknownEventKind)

	ev, err = p.TrackEvent(ctx, event.Raw{Kind: "click"})
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, errors.ErrMissingSource)

	// Rejected events never consume a sequence number
	accepted, err := p.TrackEvent(ctx, rawClick("example.com"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), accepted.SequenceID)

	assert.Zero(t, store.Len())
}

func TestPipeline_SamplingSuppressionReturnsNil(t *testing.T) {
	p, _, mock := newTestPipeline(t, Config{
		Sampling:   map[event.Kind]time.Duration{event.KindScroll: 250 * time.Millisecond},
		FlushRetry: noRetry,
	})

	ctx := context.Background()
	scroll := event.Raw{Kind: "scroll", SourceContext: "example.com"}

	first, err := p.TrackEvent(ctx, scroll)
	require.NoError(t, err)
	require.NotNil(t, first)

	mock.Add(10 * time.Millisecond)
	suppressed, err := p.TrackEvent(ctx, scroll)
	require.NoError(t, err)
	assert.Nil(t, suppressed)

	// Suppressed events consume neither buffer space nor sequence numbers
	mock.Add(250 * time.Millisecond)
	next, err := p.TrackEvent(ctx, scroll)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.SequenceID+1, next.SequenceID)
	assert.Equal(t, 2, p.SessionInfo().BufferLength)
}

func TestPipeline_CapacityTriggersSynchronousFlush(t *testing.T) {
	p, store, _ := newTestPipeline(t, Config{BufferCapacity: 3, FlushRetry: noRetry})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := p.TrackEvent(ctx, rawClick("example.com"))
		require.NoError(t, err)
	}
	assert.Zero(t, store.Len())

	// The third event fills the buffer; the flush completes before return
	_, err := p.TrackEvent(ctx, rawClick("example.com"))
	require.NoError(t, err)

	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 0, p.SessionInfo().BufferLength)
	assert.False(t, p.SessionInfo().LastFlushAt.IsZero())
}

func TestPipeline_ExplicitFlushScoresWindow(t *testing.T) {
	var gotPred *model.Prediction
	p, store, mock := newTestPipeline(t, Config{FlushRetry: noRetry},
		WithSink(func(pred model.Prediction, _ feature.Vector) {
			gotPred = &pred
		}))

	ctx := context.Background()

	_, err := p.TrackEvent(ctx, event.Raw{Kind: "page_visit", SourceContext: "https://video-site.example/watch"})
	require.NoError(t, err)
	mock.Add(time.Second)
	_, err = p.TrackEvent(ctx, rawClick("video-site.example"))
	require.NoError(t, err)

	res := p.Flush(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, TriggerExplicit, res.Trigger)
	assert.Equal(t, 2, res.Flushed)
	assert.Equal(t, 2, store.Len())

	require.NotNil(t, res.Prediction)
	assert.GreaterOrEqual(t, res.Prediction.Probability, 0.8)
	assert.Equal(t, "rule-based/1.2.0", res.Prediction.ModelVersion)

	require.NotNil(t, gotPred)
	assert.Equal(t, res.Prediction.Probability, gotPred.Probability)
}

func TestPipeline_FlushEmptyIsNoop(t *testing.T) {
	p, store, _ := newTestPipeline(t, Config{FlushRetry: noRetry})

	res := p.Flush(context.Background())
	assert.NoError(t, res.Err)
	assert.Zero(t, res.Flushed)
	assert.Nil(t, res.Prediction)
	assert.Zero(t, store.Len())
}

func TestPipeline_FlushFailureRequeuesInOrder(t *testing.T) {
	p, store, _ := newTestPipeline(t, Config{FlushRetry: noRetry})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := p.TrackEvent(ctx, rawClick("example.com"))
		require.NoError(t, err)
	}

	store.FailNext(1, nil)

	res := p.Flush(ctx)
	require.Error(t, res.Err)
	assert.True(t, stderrors.Is(res.Err, errors.ErrStorageUnavailable) || errors.IsTransient(res.Err))
	assert.Equal(t, 3, res.Requeued)
	assert.Zero(t, res.Dropped)

	info := p.SessionInfo()
	assert.Equal(t, 3, info.BufferLength, "failed batch stays buffered")
	assert.True(t, info.LastFlushAt.IsZero(), "failed flush must not advance lastFlushAt")
	assert.Zero(t, store.Len())

	// Recovery delivers the same events once, in order
	res = p.Flush(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Flushed)

	stored := store.Events()
	require.Len(t, stored, 3)
	for i, ev := range stored {
		assert.Equal(t, uint64(i), ev.SequenceID)
	}
}

func TestPipeline_SustainedFailureBoundedLoss(t *testing.T) {
	p, store, _ := newTestPipeline(t, Config{BufferCapacity: 3, FlushRetry: noRetry})

	store.FailNext(100, nil)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := p.TrackEvent(ctx, rawClick("example.com"))
		require.NoError(t, err)
		assert.LessOrEqual(t, p.SessionInfo().BufferLength, 3)
	}

	info := p.SessionInfo()
	assert.Equal(t, 3, info.BufferLength)
	assert.Positive(t, info.EventsLost)
	assert.Zero(t, store.Len())
}

func TestPipeline_TimerFlush(t *testing.T) {
	p, store, mock := newTestPipeline(t, Config{
		FlushInterval: 30 * time.Second,
		FlushRetry:    noRetry,
	})

	ctx := context.Background()
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start(ctx))
	defer p.Stop(time.Second)

	_, err := p.TrackEvent(ctx, rawClick("example.com"))
	require.NoError(t, err)

	// Let the timer goroutine register its ticker before advancing
	time.Sleep(10 * time.Millisecond)
	mock.Add(30 * time.Second)

	require.Eventually(t, func() bool {
		return store.Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPipeline_StopDrainsAndCloses(t *testing.T) {
	p, store, _ := newTestPipeline(t, Config{FlushRetry: noRetry})

	ctx := context.Background()
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start(ctx))

	for i := 0; i < 2; i++ {
		_, err := p.TrackEvent(ctx, rawClick("example.com"))
		require.NoError(t, err)
	}

	require.NoError(t, p.Stop(time.Second))
	assert.Equal(t, 2, store.Len())

	ev, err := p.TrackEvent(ctx, rawClick("example.com"))
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, errors.ErrBufferClosed)

	// Stop is idempotent
	assert.NoError(t, p.Stop(time.Second))
}

func TestPipeline_StartTwiceFails(t *testing.T) {
	p, _, _ := newTestPipeline(t, Config{FlushRetry: noRetry})

	ctx := context.Background()
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start(ctx))
	defer p.Stop(time.Second)

	assert.ErrorIs(t, p.Start(ctx), errors.ErrAlreadyStarted)
}

func TestPipeline_CleanupSourceReleasesSamplingState(t *testing.T) {
	p, _, _ := newTestPipeline(t, Config{
		Sampling:   map[event.Kind]time.Duration{event.KindScroll: 250 * time.Millisecond},
		FlushRetry: noRetry,
	})

	ctx := context.Background()
	scroll := event.Raw{Kind: "scroll", SourceContext: "tab-1"}

	first, err := p.TrackEvent(ctx, scroll)
	require.NoError(t, err)
	require.NotNil(t, first)

	suppressed, err := p.TrackEvent(ctx, scroll)
	require.NoError(t, err)
	require.Nil(t, suppressed)

	p.CleanupSource("tab-1")

	again, err := p.TrackEvent(ctx, scroll)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

// Scenario: a scroll burst of 150 events at 10ms spacing against a 250ms
// sampling floor buffers roughly one event per interval.
func TestPipeline_ScrollBurstScenario(t *testing.T) {
	p, _, mock := newTestPipeline(t, Config{
		BufferCapacity: 1000,
		Sampling:       map[event.Kind]time.Duration{event.KindScroll: 250 * time.Millisecond},
		FlushRetry:     noRetry,
	})

	ctx := context.Background()
	scroll := event.Raw{Kind: "scroll", SourceContext: "article-site.example"}

	accepted := 0
	for i := 0; i < 150; i++ {
		ev, err := p.TrackEvent(ctx, scroll)
		require.NoError(t, err)
		if ev != nil {
			accepted++
		}
		mock.Add(10 * time.Millisecond)
	}

	elapsed := 149 * 10 * time.Millisecond
	expected := int(elapsed/(250*time.Millisecond)) + 1
	assert.InDelta(t, expected, accepted, 1)
	assert.Equal(t, accepted, p.SessionInfo().BufferLength)
}

// Scenario: activity pausing past the idle timeout rotates the session;
// the next event starts sequence 0 under a fresh session ID.
func TestPipeline_IdleRotationScenario(t *testing.T) {
	p, _, mock := newTestPipeline(t, Config{
		IdleTimeout: 100 * time.Millisecond,
		FlushRetry:  noRetry,
	})

	ctx := context.Background()

	first, err := p.TrackEvent(ctx, rawClick("example.com"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, uint64(0), first.SequenceID)

	mock.Add(150 * time.Millisecond)

	second, err := p.TrackEvent(ctx, rawClick("example.com"))
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, uint64(0), second.SequenceID)
	assert.Equal(t, second.SessionID, p.SessionInfo().SessionID)
}

// Scenario: a distraction-listed domain scores high with the rule-based
// strategy, end to end through validate, stamp, buffer and flush.
func TestPipeline_DistractionScenario(t *testing.T) {
	p, store, mock := newTestPipeline(t, Config{FlushRetry: noRetry})

	ctx := context.Background()
	raws := []event.Raw{
		{Kind: "page_visit", SourceContext: "https://video-site.example/watch?v=1"},
		{Kind: "scroll", SourceContext: "video-site.example"},
		{Kind: "click", SourceContext: "video-site.example"},
	}

	for i, raw := range raws {
		ev, err := p.TrackEvent(ctx, raw)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, uint64(i), ev.SequenceID)
		mock.Add(time.Second)
	}

	res := p.Flush(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Flushed)
	assert.Equal(t, 3, store.Len())

	require.NotNil(t, res.Prediction)
	assert.GreaterOrEqual(t, res.Prediction.Probability, 0.8)
	assert.GreaterOrEqual(t, res.Prediction.Confidence, 0.5)
}

func TestDominantDomain(t *testing.T) {
	tests := []struct {
		name   string
		window []event.Event
		want   string
	}{
		{
			name:   "empty window",
			window: nil,
			want:   "",
		},
		{
			name: "latest page visit wins",
			window: []event.Event{
				{Kind: event.KindPageVisit, SourceContext: "a.example"},
				{Kind: event.KindPageVisit, SourceContext: "b.example"},
				{Kind: event.KindClick, SourceContext: "c.example"},
			},
			want: "b.example",
		},
		{
			name: "no page visit falls back to last event",
			window: []event.Event{
				{Kind: event.KindScroll, SourceContext: "a.example"},
				{Kind: event.KindClick, SourceContext: "b.example"},
			},
			want: "b.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dominantDomain(tt.window))
		})
	}
}

// batchStore records every persisted batch as a unit so tests can check
// that flushes deliver whole, non-interleaved batches.
type batchStore struct {
	mu      sync.Mutex
	batches [][]event.Event
}

func (s *batchStore) Store(_ context.Context, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]event.Event, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *batchStore) Query(context.Context, storage.Criteria) ([]event.Event, error) {
	return nil, nil
}

func (s *batchStore) Batches() [][]event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]event.Event, len(s.batches))
	copy(out, s.batches)
	return out
}

func TestPipeline_ConcurrentFlushesDoNotInterleave(t *testing.T) {
	store := &batchStore{}
	models := newTestModels(t)
	p, err := New(Config{BufferCapacity: 16, FlushRetry: noRetry},
		store, models, WithClock(clock.NewMock()))
	require.NoError(t, err)

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for w := 0; w < producers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, trackErr := p.TrackEvent(context.Background(), rawClick("example.com"))
				assert.NoError(t, trackErr)
			}
		}()
	}
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				p.Flush(context.Background())
			}
		}()
	}
	wg.Wait()

	res := p.Flush(context.Background())
	require.NoError(t, res.Err)

	// Capacity and explicit flushes raced; every batch must still arrive
	// whole, and their concatenation must be the full sequence in order.
	var next uint64
	for _, batch := range store.Batches() {
		require.NotEmpty(t, batch)
		for _, ev := range batch {
			require.Equal(t, next, ev.SequenceID)
			next++
		}
	}
	assert.Equal(t, uint64(producers*perProducer), next)
	assert.Zero(t, p.SessionInfo().BufferLength)
}
