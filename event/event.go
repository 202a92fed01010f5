// Package event defines the canonical interaction event schema and its validator.
package event

import (
	"net/url"
	"strings"
)

// Kind identifies an interaction event type. The set of kinds is closed:
// the validator rejects anything outside this enumeration.
type Kind string

const (
	// KindPageVisit records navigation to a page
	KindPageVisit Kind = "page_visit"
	// KindTabSwitch records switching between tabs
	KindTabSwitch Kind = "tab_switch"
	// KindScroll records scroll activity (high frequency, sampled)
	KindScroll Kind = "scroll"
	// KindClick records pointer clicks
	KindClick Kind = "click"
	// KindKeystrokeBurst records aggregated typing activity
	KindKeystrokeBurst Kind = "keystroke_burst"
	// KindFocus records a window or tab gaining focus
	KindFocus Kind = "focus"
	// KindBlur records a window or tab losing focus
	KindBlur Kind = "blur"
	// KindIdle records a detected idle period
	KindIdle Kind = "idle"
)

// Kinds returns all valid event kinds in a stable order
func Kinds() []Kind {
	return []Kind{
		KindPageVisit,
		KindTabSwitch,
		KindScroll,
		KindClick,
		KindKeystrokeBurst,
		KindFocus,
		KindBlur,
		KindIdle,
	}
}

// IsValid reports whether the kind is a member of the closed enumeration
func (k Kind) IsValid() bool {
	switch k {
	case KindPageVisit, KindTabSwitch, KindScroll, KindClick,
		KindKeystrokeBurst, KindFocus, KindBlur, KindIdle:
		return true
	default:
		return false
	}
}

// String returns the kind name
func (k Kind) String() string {
	return string(k)
}

// Raw is an unvalidated event as submitted by a producer.
// Timestamp is optional; the pipeline stamps enqueue time when zero.
type Raw struct {
	Kind          string         `json:"kind"`
	Timestamp     int64          `json:"timestamp,omitempty"`
	SourceContext string         `json:"source_context"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Event is one canonical, validated interaction record. SessionID and
// SequenceID are assigned exactly once, at enqueue time, by the session
// manager; an Event is immutable afterwards.
type Event struct {
	Timestamp     int64          `json:"timestamp"` // wall clock, milliseconds
	Kind          Kind           `json:"kind"`
	SessionID     string         `json:"session_id"`
	SequenceID    uint64         `json:"sequence_id"`
	SourceContext string         `json:"source_context"`
	Payload       map[string]any `json:"payload"`
}

// Domain extracts the host portion of the event's source context.
// A bare host ("video-site.example") passes through unchanged; a full
// URL is parsed. Returns "" when nothing host-like is present.
func (e Event) Domain() string {
	return DomainOf(e.SourceContext)
}

// DomainOf extracts a host from a source context string
func DomainOf(sourceContext string) string {
	s := strings.TrimSpace(sourceContext)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			return strings.ToLower(u.Hostname())
		}
	}
	// Bare host, possibly with a path suffix
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}
