package event

import (
	"container/heap"
	"fmt"

	"github.com/roundsim/roundsim/sim"
)

// eventHeap implements heap.Interface using Compare.
type eventHeap []Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return Compare(h[i], h[j]) < 0 }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = Event{} // release payload pointers
	*h = old[:n-1]
	return item
}

// Queue is a per-host min-heap of events.
//
// Popped times never decrease; popping an event earlier than the previous
// one panics because it means causality was violated upstream.
//
// Thread-safety: NOT thread-safe. The owning host serializes access.
type Queue struct {
	events     eventHeap
	lastPopped sim.EmulatedTime
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{events: make(eventHeap, 0)}
}

// Push inserts e. Duplicates are not detected.
func (q *Queue) Push(e Event) {
	heap.Push(&q.events, e)
}

// Pop removes and returns the earliest event, or false if the queue is empty.
func (q *Queue) Pop() (Event, bool) {
	if len(q.events) == 0 {
		return Event{}, false
	}
	e := heap.Pop(&q.events).(Event)
	if e.time < q.lastPopped {
		panic(fmt.Sprintf("event.Queue.Pop: time went backwards: %v < %v", e.time, q.lastPopped))
	}
	q.lastPopped = e.time
	return e, true
}

// NextEventTime returns the time of the earliest event without removing it.
func (q *Queue) NextEventTime() (sim.EmulatedTime, bool) {
	if len(q.events) == 0 {
		return 0, false
	}
	return q.events[0].time, true
}

// LastPoppedTime returns the time of the most recently popped event.
func (q *Queue) LastPoppedTime() sim.EmulatedTime {
	return q.lastPopped
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.events)
}
