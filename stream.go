package eventsource

import (
	"fmt"
	"sort"
	"strings"
)

// Stream is an ordered sequence of events. Order is significant: it is the
// commit order and therefore the replay order. A Stream is treated as
// immutable once produced; Map and NewStream return fresh slices.
type Stream []Event

// NewStream builds a stream from a raw event slice, optionally applying a
// per-element transform. The input slice is never modified.
func NewStream(events []Event, transform func(Event) Event) Stream {
	s := make(Stream, len(events))
	for i, ev := range events {
		if transform != nil {
			ev = transform(ev)
		}
		s[i] = ev
	}
	return s
}

// Len returns the number of events in the stream.
func (s Stream) Len() int { return len(s) }

// Map returns a new stream with fn applied to every event.
func (s Stream) Map(fn func(Event) Event) Stream {
	return NewStream(s, fn)
}

// String summarizes the stream for diagnostics: event count plus the type
// composition, e.g. "3 events (ItemAdded: 2, OrderCreated: 1)".
func (s Stream) String() string {
	if len(s) == 0 {
		return "empty stream"
	}

	counts := make(map[string]int, len(s))
	for _, ev := range s {
		counts[ev.Type]++
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s: %d", t, counts[t])
	}

	noun := "events"
	if len(s) == 1 {
		noun = "event"
	}
	return fmt.Sprintf("%d %s (%s)", len(s), noun, strings.Join(parts, ", "))
}
