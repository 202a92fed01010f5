package event

import (
	"fmt"
	"strings"

	"github.com/c360/focusstream/errors"
)

// payloadDefaults declares, per kind, the payload fields the rest of the
// pipeline may rely on and the value used when a producer omits them.
// Fields outside this set are preserved untouched (forward compatible),
// never validated further.
var payloadDefaults = map[Kind]map[string]any{
	KindPageVisit: {
		"title":      "",
		"transition": "link",
	},
	KindTabSwitch: {
		"from_tab": "",
		"to_tab":   "",
	},
	KindScroll: {
		"delta":     float64(0),
		"direction": "down",
		"position":  float64(0),
	},
	KindClick: {
		"target": "",
		"button": "left",
	},
	KindKeystrokeBurst: {
		"count":       float64(0),
		"duration_ms": float64(0),
	},
	KindFocus: {},
	KindBlur:  {},
	KindIdle: {
		"duration_ms": float64(0),
	},
}

// Validate normalizes a raw producer event into a canonical Event.
// Pure: no clock access, no mutation of the input. SessionID, SequenceID
// and a zero Timestamp are filled in later, at enqueue time.
//
// Unknown kinds are rejected with a classified invalid error. Declared
// payload fields missing from the input are filled with their documented
// defaults; extra fields are carried through unmodified.
func Validate(raw Raw) (Event, error) {
	kind := Kind(raw.Kind)
	if !kind.IsValid() {
		return Event{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownEventKind, raw.Kind),
			"Validator", "Validate", "check event kind")
	}

	if strings.TrimSpace(raw.SourceContext) == "" {
		return Event{}, errors.WrapInvalid(errors.ErrMissingSource,
			"Validator", "Validate", "check source context")
	}

	payload := make(map[string]any, len(raw.Payload)+len(payloadDefaults[kind]))
	for k, v := range payloadDefaults[kind] {
		payload[k] = v
	}
	for k, v := range raw.Payload {
		payload[k] = v
	}

	return Event{
		Timestamp:     raw.Timestamp,
		Kind:          kind,
		SourceContext: raw.SourceContext,
		Payload:       payload,
	}, nil
}
