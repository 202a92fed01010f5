// Package feature reduces a window of canonical events into the fixed-shape
// numeric vector consumed by the scoring engine.
package feature

import (
	"github.com/c360/focusstream/event"
)

// Context carries the session-level inputs the extractor needs beyond the
// event window itself.
type Context struct {
	SessionID        string
	SessionStartedMS int64
}

// Vector is the fixed-shape numeric summary of one event window. It is
// derived and ephemeral: computed fresh per flush, never persisted.
type Vector struct {
	ActiveDurationMS float64 `json:"active_duration_ms"`
	IdleDurationMS   float64 `json:"idle_duration_ms"`

	PageVisitCount      float64 `json:"page_visit_count"`
	TabSwitchCount      float64 `json:"tab_switch_count"`
	ScrollCount         float64 `json:"scroll_count"`
	ClickCount          float64 `json:"click_count"`
	KeystrokeBurstCount float64 `json:"keystroke_burst_count"`
	FocusCount          float64 `json:"focus_count"`
	BlurCount           float64 `json:"blur_count"`
	IdleCount           float64 `json:"idle_count"`

	ScrollRatePerMinute      float64 `json:"scroll_rate_per_minute"`
	InteractionRatePerMinute float64 `json:"interaction_rate_per_minute"`
	DistinctDomainVisits     float64 `json:"distinct_domain_visits"`
	InteractionsPerPageVisit float64 `json:"interactions_per_page_visit"`

	SessionAgeMS float64 `json:"session_age_ms"`
}

// AsMap returns the vector as named metrics for model strategies that
// consume features generically.
func (v Vector) AsMap() map[string]float64 {
	return map[string]float64{
		"activeDuration":           v.ActiveDurationMS,
		"idleDuration":             v.IdleDurationMS,
		"pageVisitCount":           v.PageVisitCount,
		"tabSwitchCount":           v.TabSwitchCount,
		"scrollCount":              v.ScrollCount,
		"clickCount":               v.ClickCount,
		"keystrokeBurstCount":      v.KeystrokeBurstCount,
		"focusCount":               v.FocusCount,
		"blurCount":                v.BlurCount,
		"idleCount":                v.IdleCount,
		"scrollRatePerMinute":      v.ScrollRatePerMinute,
		"interactionRatePerMinute": v.InteractionRatePerMinute,
		"distinctDomainVisits":     v.DistinctDomainVisits,
		"interactionsPerPageVisit": v.InteractionsPerPageVisit,
		"sessionAge":               v.SessionAgeMS,
	}
}

// Extract computes the feature vector for an ordered event window.
// Pure and deterministic: the same window and context always yield the
// same vector. Missing or malformed payload fields contribute zero
// rather than failing extraction.
func Extract(window []event.Event, sctx Context) Vector {
	var v Vector
	if len(window) == 0 {
		return v
	}

	if sctx.SessionStartedMS > 0 {
		v.SessionAgeMS = float64(window[len(window)-1].Timestamp - sctx.SessionStartedMS)
		if v.SessionAgeMS < 0 {
			v.SessionAgeMS = 0
		}
	}

	domains := make(map[string]struct{})

	for _, ev := range window {
		switch ev.Kind {
		case event.KindPageVisit:
			v.PageVisitCount++
			if d := ev.Domain(); d != "" {
				domains[d] = struct{}{}
			}
		case event.KindTabSwitch:
			v.TabSwitchCount++
		case event.KindScroll:
			v.ScrollCount++
		case event.KindClick:
			v.ClickCount++
		case event.KindKeystrokeBurst:
			v.KeystrokeBurstCount++
		case event.KindFocus:
			v.FocusCount++
		case event.KindBlur:
			v.BlurCount++
		case event.KindIdle:
			v.IdleCount++
			v.IdleDurationMS += numericField(ev.Payload, "duration_ms")
		}
	}

	elapsedMS := float64(window[len(window)-1].Timestamp - window[0].Timestamp)
	if elapsedMS < 0 {
		elapsedMS = 0
	}

	v.ActiveDurationMS = elapsedMS - v.IdleDurationMS
	if v.ActiveDurationMS < 0 {
		v.ActiveDurationMS = 0
	}

	interactions := v.ScrollCount + v.ClickCount + v.KeystrokeBurstCount
	if elapsedMS > 0 {
		minutes := elapsedMS / 60000.0
		v.ScrollRatePerMinute = v.ScrollCount / minutes
		v.InteractionRatePerMinute = interactions / minutes
	}

	v.DistinctDomainVisits = float64(len(domains))

	pageVisits := v.PageVisitCount
	if pageVisits < 1 {
		pageVisits = 1
	}
	v.InteractionsPerPageVisit = interactions / pageVisits

	return v
}

// numericField reads a float64-compatible payload field, defaulting to zero
func numericField(payload map[string]any, key string) float64 {
	if payload == nil {
		return 0
	}
	switch n := payload[key].(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}
