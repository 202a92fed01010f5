package stream

import (
	"sync"
	"time"

	"github.com/c360/focusstream/event"
)

// Buffer is the bounded in-memory queue of canonical events awaiting
// flush, with per-source sampling state for high-frequency kinds.
// Insertion order is flush order. The buffer itself is passive: the
// Pipeline decides when to drain it and with which trigger.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	sampling map[event.Kind]time.Duration

	events      []event.Event
	lastSample  map[string]map[event.Kind]time.Time
	lastFlushAt time.Time
	lost        uint64
}

// NewBuffer creates a buffer with the given capacity and per-kind
// minimum inter-sample intervals. Kinds absent from sampling are
// never suppressed.
func NewBuffer(capacity int, sampling map[event.Kind]time.Duration) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	s := make(map[event.Kind]time.Duration, len(sampling))
	for kind, interval := range sampling {
		if interval > 0 {
			s[kind] = interval
		}
	}
	return &Buffer{
		capacity:   capacity,
		sampling:   s,
		lastSample: make(map[string]map[event.Kind]time.Time),
	}
}

// Sample decides whether an event of kind from source should be kept at
// time now. Suppressed events leave the last-sample timestamp unchanged,
// so one event per interval passes regardless of arrival rate. Accepted
// events record now as the kind's last sample time.
func (b *Buffer) Sample(source string, kind event.Kind, now time.Time) bool {
	interval, sampled := b.sampling[kind]
	if !sampled {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	perKind := b.lastSample[source]
	if last, ok := perKind[kind]; ok && now.Sub(last) < interval {
		return false
	}

	if perKind == nil {
		perKind = make(map[event.Kind]time.Time)
		b.lastSample[source] = perKind
	}
	perKind[kind] = now
	return true
}

// Append adds a stamped event at the back of the buffer
func (b *Buffer) Append(ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Len returns the number of buffered events
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// AtCapacity reports whether the buffer has reached its configured capacity
func (b *Buffer) AtCapacity() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events) >= b.capacity
}

// Capacity returns the configured capacity
func (b *Buffer) Capacity() int {
	return b.capacity
}

// TakeAll atomically swaps the buffer contents out for draining.
// Enqueues during the drain accumulate into the fresh, empty buffer.
func (b *Buffer) TakeAll() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.events
	b.events = nil
	return batch
}

// Requeue puts a failed batch back at the front of the buffer, ahead of
// events enqueued during the failed flush, preserving order. If the
// combined length exceeds capacity, the oldest events that were not part
// of the retried batch are dropped first; only when the batch alone
// exceeds capacity are its own oldest events shed. Loss is counted so
// the buffer stays bounded under sustained flush failure. Returns the
// number of events lost.
func (b *Buffer) Requeue(batch []event.Event) int {
	if len(batch) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.events
	dropped := 0

	overflow := len(batch) + len(live) - b.capacity
	if overflow > 0 {
		n := min(overflow, len(live))
		live = live[n:]
		dropped += n
		overflow -= n
	}
	if overflow > 0 {
		batch = batch[overflow:]
		dropped += overflow
	}
	b.lost += uint64(dropped)

	merged := make([]event.Event, 0, len(batch)+len(live))
	merged = append(merged, batch...)
	merged = append(merged, live...)
	b.events = merged

	return dropped
}

// MarkFlushed records a successful flush completion time. Failed flushes
// never advance this.
func (b *Buffer) MarkFlushed(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFlushAt = now
}

// LastFlushAt returns when the last successful flush completed
func (b *Buffer) LastFlushAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFlushAt
}

// Lost returns the total events dropped under sustained flush failure
func (b *Buffer) Lost() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lost
}

// CleanupSource releases the sampling state held for a source, called
// when the originating tab or page closes.
func (b *Buffer) CleanupSource(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.lastSample, source)
}
