package natsstore

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/focusstream/event"
)

// Behavior against a live JetStream bucket is covered by integration
// environments; these tests pin the key scheme the bucket layout relies on.

func TestBatchKey_Padding(t *testing.T) {
	key := batchKey(event.Event{SessionID: "abc", SequenceID: 7})
	assert.Equal(t, "abc.00000000000000000007", key)
}

func TestBatchKey_LexicalOrderMatchesSequenceOrder(t *testing.T) {
	keys := []string{
		batchKey(event.Event{SessionID: "s", SequenceID: 100}),
		batchKey(event.Event{SessionID: "s", SequenceID: 2}),
		batchKey(event.Event{SessionID: "s", SequenceID: 30}),
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	assert.Equal(t, []string{keys[1], keys[2], keys[0]}, sorted)
}
