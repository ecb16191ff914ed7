// Package latch implements a reusable single-writer, multi-reader barrier.
//
// The writer calls Open once per round; every registered waiter calls Wait
// once per round and returns once the generation it is waiting for has been
// published. Open must not run again until every waiter has finished its Wait
// for the previous generation.
package latch

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Latch is the writer side of the barrier.
type Latch struct {
	// gen wraps; waiters compare with wrapping subtraction.
	gen atomic.Uint32

	mu      sync.Mutex
	cond    *sync.Cond
	waiters int
	pending int // waiters that have not yet observed gen
}

// New creates a closed latch at generation zero.
func New() *Latch {
	l := &Latch{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// NewWaiter registers a waiter at the current generation. A spinning waiter
// busy-waits with runtime.Gosched instead of parking on the condition
// variable, trading CPU for wake-up latency.
//
// Panics if called while a generation is still being consumed.
func (l *Latch) NewWaiter(spin bool) *Waiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending > 0 {
		panic(fmt.Sprintf("Latch.NewWaiter: %d waiters have not consumed generation %d", l.pending, l.gen.Load()))
	}
	l.waiters++
	return &Waiter{latch: l, gen: l.gen.Load(), spin: spin}
}

// Open publishes the next generation and wakes every waiter.
//
// Panics if a waiter has not yet completed Wait for the previous Open.
func (l *Latch) Open() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending > 0 {
		panic(fmt.Sprintf("Latch.Open: %d of %d waiters have not waited on generation %d",
			l.pending, l.waiters, l.gen.Load()))
	}
	l.pending = l.waiters
	l.gen.Add(1)
	l.cond.Broadcast()
}

// Generation returns the number of Open calls so far, modulo 2^32.
func (l *Latch) Generation() uint32 {
	return l.gen.Load()
}

// Waiter is the reader side of the barrier. A Waiter must be used by a
// single goroutine.
type Waiter struct {
	latch *Latch
	gen   uint32
	spin  bool
	done  bool
}

// Wait blocks until the latch has been opened for this waiter's next
// generation.
//
// Panics if the latch was opened more than once since the previous Wait.
func (w *Waiter) Wait() {
	if w.done {
		panic("Latch.Waiter.Wait: waiter already closed")
	}
	l := w.latch
	if w.spin {
		for l.gen.Load() == w.gen {
			runtime.Gosched()
		}
		l.mu.Lock()
	} else {
		l.mu.Lock()
		for l.gen.Load() == w.gen {
			l.cond.Wait()
		}
	}
	defer l.mu.Unlock()

	if gap := l.gen.Load() - w.gen; gap != 1 {
		panic(fmt.Sprintf("Latch.Waiter.Wait: generation gap %d (latch %d, waiter %d)", gap, l.gen.Load(), w.gen))
	}
	w.gen++
	l.pending--
}

// Close deregisters the waiter. It must not have an unconsumed generation.
func (w *Waiter) Close() {
	if w.done {
		return
	}
	l := w.latch
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen.Load() != w.gen {
		panic("Latch.Waiter.Close: waiter has an unconsumed generation")
	}
	w.done = true
	l.waiters--
}
