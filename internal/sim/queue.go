package sim

import (
	"container/heap"
	"math"
	"sort"
	"sync"
)

// eventQueue is a priority queue of pending events keyed by (Time, Seq).
//
// Pop always returns the event with the smallest key; equal timestamps
// resolve by scheduling order, giving deterministic, reproducible
// dispatch order.
//
// The queue is unbounded so cascading handler reschedules can enqueue
// arbitrarily many events without blocking. Thread-safety is provided
// for external scheduling while the engine's run loop drains; dispatch
// itself is single-threaded.
//
// Cancellation is lazy: cancelled sequence numbers are tracked in a set
// and skipped when they surface at the head. Compact sweeps them out
// eagerly when many accumulate.
type eventQueue struct {
	mu        sync.Mutex
	items     eventHeap
	cancelled map[int64]struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		items:     make(eventHeap, 0, 64), // Pre-allocate for typical workloads
		cancelled: make(map[int64]struct{}),
	}
}

// Push inserts an event. The event's Seq must already be assigned.
// Fails with an INVALID_EVENT error if the timestamp is negative or
// non-finite. NaN compares false against everything, so letting one in
// would corrupt the heap order without ever surfacing an error.
func (q *eventQueue) Push(ev Event) error {
	ts := float64(ev.Time)
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return &Error{
			Code:    ErrCodeInvalidEvent,
			Message: "timestamp must be finite, got " + ev.Time.String(),
			Kind:    ev.Kind,
		}
	}
	if ev.Time < 0 {
		return &Error{
			Code:    ErrCodeInvalidEvent,
			Message: "timestamp must be non-negative, got " + ev.Time.String(),
			Kind:    ev.Kind,
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.items, ev)
	return nil
}

// PopNext removes and returns the event with the smallest (Time, Seq).
// Cancelled events surfacing at the head are discarded on the way.
// Fails with an EMPTY_QUEUE error if no live event remains.
func (q *eventQueue) PopNext() (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() > 0 {
		ev := heap.Pop(&q.items).(Event)
		if _, dead := q.cancelled[ev.Seq]; dead {
			delete(q.cancelled, ev.Seq)
			continue
		}
		return ev, nil
	}
	return Event{}, newEmptyQueueError()
}

// PeekNextTime returns the timestamp of the next live event without
// removing it. Used for "run until time T" lookahead.
func (q *eventQueue) PeekNextTime() (Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Drain cancelled events off the head; they are dead either way.
	for q.items.Len() > 0 {
		head := q.items[0]
		if _, dead := q.cancelled[head.Seq]; dead {
			heap.Pop(&q.items)
			delete(q.cancelled, head.Seq)
			continue
		}
		return head.Time, nil
	}
	return 0, newEmptyQueueError()
}

// Cancel marks the event with the given sequence number as cancelled.
// Returns false if no pending event carries that seq or it was already
// cancelled.
func (q *eventQueue) Cancel(seq int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dead := q.cancelled[seq]; dead {
		return false
	}
	for _, ev := range q.items {
		if ev.Seq == seq {
			q.cancelled[seq] = struct{}{}
			return true
		}
	}
	return false
}

// take removes and returns a pending event by seq, regardless of its
// position. Used by reschedule.
func (q *eventQueue) take(seq int64) (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dead := q.cancelled[seq]; dead {
		return Event{}, false
	}
	for i, ev := range q.items {
		if ev.Seq == seq {
			heap.Remove(&q.items, i)
			return ev, true
		}
	}
	return Event{}, false
}

// Len returns the count of live (non-cancelled) pending events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - len(q.cancelled)
}

// Compact removes cancelled events from the heap and returns the number
// swept. Call when many cancellations have accumulated.
func (q *eventQueue) Compact() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.cancelled) == 0 {
		return 0
	}

	live := make(eventHeap, 0, len(q.items))
	for _, ev := range q.items {
		if _, dead := q.cancelled[ev.Seq]; !dead {
			live = append(live, ev)
		}
	}
	removed := len(q.items) - len(live)
	q.items = live
	heap.Init(&q.items)
	q.cancelled = make(map[int64]struct{})
	return removed
}

// Pending returns a chronological snapshot of live events, optionally
// filtered by kind (empty kind matches all). Non-destructive.
func (q *eventQueue) Pending(kind string) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Event, 0, len(q.items))
	for _, ev := range q.items {
		if _, dead := q.cancelled[ev.Seq]; dead {
			continue
		}
		if kind != "" && ev.Kind != kind {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// eventHeap implements container/heap ordered by (Time, Seq).
type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = Event{} // Release payload reference for GC
	*h = old[:n-1]
	return ev
}
