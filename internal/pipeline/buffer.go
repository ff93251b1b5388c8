package pipeline

import (
	"sort"

	"github.com/cursor-telemetry/backend/internal/session"
)

// EventBuffer holds pending events fully sorted by (Timestamp,
// SequenceHint), bounded in size. It owns the sequence counter used for
// tie-breaking, so late-arriving events with older timestamps land at the
// right position while same-timestamp events keep arrival order.
//
// The buffer is not safe for concurrent use; the pipeline owns it under
// its mutex. Collaborators must never touch it directly.
type EventBuffer struct {
	max     int
	events  []session.Event
	nextSeq uint64
}

func NewEventBuffer(max int) *EventBuffer {
	return &EventBuffer{max: max}
}

// Insert assigns the next sequence hint and places ev at its sorted
// position (binary search, O(log n) + shift). If the buffer is full the
// oldest event is silently dropped to make room; Insert reports whether
// that happened. Eviction is a backpressure valve, not a correctness
// mechanism — callers needing durability must persist before submitting.
func (b *EventBuffer) Insert(ev session.Event) (evicted bool) {
	b.nextSeq++
	ev.SequenceHint = b.nextSeq

	i := sort.Search(len(b.events), func(i int) bool {
		return ev.Before(&b.events[i])
	})
	b.events = append(b.events, session.Event{})
	copy(b.events[i+1:], b.events[i:])
	b.events[i] = ev

	if len(b.events) > b.max {
		copy(b.events, b.events[1:])
		b.events[len(b.events)-1] = session.Event{}
		b.events = b.events[:len(b.events)-1]
		return true
	}
	return false
}

func (b *EventBuffer) Len() int {
	return len(b.events)
}

// DrainBatch removes and returns up to n of the oldest events. The batch
// is re-sorted before returning; the buffer invariant should already
// guarantee order, but drained batches cross the ownership boundary into
// the processing stages and the sort is cheap on sorted input.
func (b *EventBuffer) DrainBatch(n int) []session.Event {
	if n > len(b.events) {
		n = len(b.events)
	}
	if n <= 0 {
		return nil
	}

	batch := make([]session.Event, n)
	copy(batch, b.events[:n])
	remaining := copy(b.events, b.events[n:])
	for i := remaining; i < len(b.events); i++ {
		b.events[i] = session.Event{}
	}
	b.events = b.events[:remaining]

	sortEvents(batch)
	return batch
}

// sortEvents sorts in place by (Timestamp, SequenceHint). Stable so that
// events with identical keys keep their relative order.
func sortEvents(events []session.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(&events[j])
	})
}
