package engine

import (
	"fmt"
	"sort"

	"github.com/OdinManiac/regelum/internal/ir"
)

// ExternalEvent seeds a port or variable at a specific tag. Events for
// future tags wait in the queue until the scheduler reaches them.
type ExternalEvent struct {
	Tag    ir.Tag
	Target string // global port key ("node.port") or variable name
	Value  ir.Value
}

// eventQueue holds pending external events in tag order. Insertion
// keeps the slice sorted; equal tags preserve enqueue order so event
// application is deterministic.
type eventQueue struct {
	events []ExternalEvent
}

func newEventQueue() *eventQueue {
	return &eventQueue{}
}

// Enqueue inserts an event. Events for tags already in the past are
// rejected: a tick is atomic and cannot be amended retroactively.
func (q *eventQueue) Enqueue(now ir.Tag, ev ExternalEvent) error {
	if ev.Tag.Before(now) {
		return fmt.Errorf("event for past tag %s (now %s)", ev.Tag, now)
	}
	// Stable insertion point after any equal tag.
	i := sort.Search(len(q.events), func(i int) bool {
		return ev.Tag.Before(q.events[i].Tag)
	})
	q.events = append(q.events, ExternalEvent{})
	copy(q.events[i+1:], q.events[i:])
	q.events[i] = ev
	return nil
}

// PopDue removes and returns every event at or before the given tag.
func (q *eventQueue) PopDue(tag ir.Tag) []ExternalEvent {
	n := 0
	for n < len(q.events) && !tag.Before(q.events[n].Tag) {
		n++
	}
	due := q.events[:n:n]
	q.events = q.events[n:]
	return due
}

// PendingAt reports whether any queued event targets exactly the given
// instant (any microstep).
func (q *eventQueue) PendingAt(t float64) bool {
	for _, ev := range q.events {
		if ev.Tag.Time == t {
			return true
		}
	}
	return false
}

// Len returns the number of pending events.
func (q *eventQueue) Len() int {
	return len(q.events)
}
