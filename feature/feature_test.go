package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/focusstream/event"
)

func ev(kind event.Kind, ts int64, source string, payload map[string]any) event.Event {
	return event.Event{Timestamp: ts, Kind: kind, SourceContext: source, Payload: payload}
}

func TestExtract_EmptyWindow(t *testing.T) {
	v := Extract(nil, Context{SessionID: "s1"})
	assert.Equal(t, Vector{}, v)
}

func TestExtract_Counts(t *testing.T) {
	window := []event.Event{
		ev(event.KindPageVisit, 0, "a.example", nil),
		ev(event.KindScroll, 100, "a.example", nil),
		ev(event.KindScroll, 200, "a.example", nil),
		ev(event.KindClick, 300, "a.example", nil),
		ev(event.KindKeystrokeBurst, 400, "a.example", nil),
		ev(event.KindPageVisit, 500, "b.example", nil),
	}

	v := Extract(window, Context{SessionID: "s1"})

	assert.Equal(t, float64(2), v.PageVisitCount)
	assert.Equal(t, float64(2), v.ScrollCount)
	assert.Equal(t, float64(1), v.ClickCount)
	assert.Equal(t, float64(1), v.KeystrokeBurstCount)
	assert.Equal(t, float64(2), v.DistinctDomainVisits)
}

func TestExtract_RatesNormalizedPerMinute(t *testing.T) {
	// 12 scrolls across exactly one minute
	window := make([]event.Event, 0, 13)
	window = append(window, ev(event.KindPageVisit, 0, "a.example", nil))
	for i := 1; i <= 12; i++ {
		window = append(window, ev(event.KindScroll, int64(i*5000), "a.example", nil))
	}

	v := Extract(window, Context{SessionID: "s1"})

	assert.InDelta(t, 12.0, v.ScrollRatePerMinute, 0.001)
	assert.InDelta(t, 12.0, v.InteractionRatePerMinute, 0.001)
}

func TestExtract_ZeroElapsedHasZeroRates(t *testing.T) {
	window := []event.Event{
		ev(event.KindScroll, 1000, "a.example", nil),
		ev(event.KindScroll, 1000, "a.example", nil),
	}

	v := Extract(window, Context{SessionID: "s1"})

	assert.Zero(t, v.ScrollRatePerMinute)
	assert.Zero(t, v.InteractionRatePerMinute)
	assert.Equal(t, float64(2), v.ScrollCount)
}

func TestExtract_IdleAndActiveDurations(t *testing.T) {
	window := []event.Event{
		ev(event.KindPageVisit, 0, "a.example", nil),
		ev(event.KindIdle, 30000, "a.example", map[string]any{"duration_ms": float64(10000)}),
		ev(event.KindClick, 60000, "a.example", nil),
	}

	v := Extract(window, Context{SessionID: "s1"})

	assert.Equal(t, float64(10000), v.IdleDurationMS)
	assert.Equal(t, float64(50000), v.ActiveDurationMS)
}

func TestExtract_MissingPayloadDefaultsToZero(t *testing.T) {
	window := []event.Event{
		ev(event.KindIdle, 0, "a.example", nil),
		ev(event.KindIdle, 1000, "a.example", map[string]any{"duration_ms": "not-a-number"}),
	}

	v := Extract(window, Context{SessionID: "s1"})

	assert.Zero(t, v.IdleDurationMS)
	assert.Equal(t, float64(2), v.IdleCount)
}

func TestExtract_InteractionsPerPageVisit(t *testing.T) {
	window := []event.Event{
		ev(event.KindPageVisit, 0, "a.example", nil),
		ev(event.KindPageVisit, 100, "b.example", nil),
		ev(event.KindClick, 200, "b.example", nil),
		ev(event.KindClick, 300, "b.example", nil),
		ev(event.KindScroll, 400, "b.example", nil),
		ev(event.KindClick, 500, "b.example", nil),
	}

	v := Extract(window, Context{SessionID: "s1"})
	assert.InDelta(t, 2.0, v.InteractionsPerPageVisit, 0.001)
}

func TestExtract_Deterministic(t *testing.T) {
	window := []event.Event{
		ev(event.KindPageVisit, 0, "a.example", nil),
		ev(event.KindScroll, 500, "a.example", map[string]any{"delta": float64(10)}),
		ev(event.KindIdle, 1000, "a.example", map[string]any{"duration_ms": float64(200)}),
	}

	first := Extract(window, Context{SessionID: "s1"})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Extract(window, Context{SessionID: "s1"}))
	}
}

func TestExtract_SessionAge(t *testing.T) {
	window := []event.Event{
		ev(event.KindPageVisit, 5000, "a.example", nil),
		ev(event.KindClick, 9000, "a.example", nil),
	}

	v := Extract(window, Context{SessionID: "s1", SessionStartedMS: 1000})
	assert.Equal(t, float64(8000), v.SessionAgeMS)

	// Unknown session start leaves the age at zero
	v = Extract(window, Context{SessionID: "s1"})
	assert.Zero(t, v.SessionAgeMS)
}

func TestVector_AsMapCoversAllFields(t *testing.T) {
	m := Vector{}.AsMap()
	assert.Len(t, m, 15)
	assert.Contains(t, m, "scrollRatePerMinute")
	assert.Contains(t, m, "distinctDomainVisits")
	assert.Contains(t, m, "sessionAge")
}
