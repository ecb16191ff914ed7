package scheduler

import (
	"fmt"
	"sync"

	"github.com/roundsim/roundsim/sim/pool"
)

type entry[H any] struct {
	idx  int // position in the slice given to New
	host H
}

// hostQueue is a FIFO that other threads may steal from.
type hostQueue[H any] struct {
	mu    sync.Mutex
	items []entry[H]
	head  int
}

func (q *hostQueue[H]) push(e entry[H]) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
}

func (q *hostQueue[H]) pop() (entry[H], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return entry[H]{}, false
	}
	e := q.items[q.head]
	q.items[q.head] = entry[H]{}
	q.head++
	if q.head == len(q.items) {
		q.items, q.head = q.items[:0], 0
	}
	return e, true
}

func (q *hostQueue[H]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// threadPerCore runs one thread per processor. Each thread drains its own
// to-process queue, then steals from the others in ring order starting after
// itself. A host finished by thread i lands in processed[i], so it starts the
// next round on the thread that last ran it.
type threadPerCore[H any] struct {
	pool      *pool.Pool
	numHosts  int
	toProcess []*hostQueue[H]
	processed []*hostQueue[H]
	// steal cursor per thread: how many queues, counted from its own, are
	// known to be empty this round
	offsets []int
}

func newThreadPerCore[H any](threads int, cpus []int, hosts []H) *threadPerCore[H] {
	s := &threadPerCore[H]{
		pool:      pool.NewUnbounded("thread-per-core", cpus, threads),
		numHosts:  len(hosts),
		toProcess: make([]*hostQueue[H], threads),
		processed: make([]*hostQueue[H], threads),
		offsets:   make([]int, threads),
	}
	for i := 0; i < threads; i++ {
		s.toProcess[i] = &hostQueue[H]{}
		s.processed[i] = &hostQueue[H]{}
	}
	for i, h := range hosts {
		s.toProcess[i%threads].push(entry[H]{idx: i, host: h})
	}
	return s
}

func (s *threadPerCore[H]) Parallelism() int {
	return s.pool.NumThreads()
}

func (s *threadPerCore[H]) Scope(f func(*Scope[H])) {
	s.pool.Scope(func(ps *pool.Scope) {
		f(&Scope[H]{ps: ps, runner: s})
	})
}

func (s *threadPerCore[H]) run(ps *pool.Scope, f func(Worker)) {
	ps.Run(func(info pool.TaskInfo) {
		f(workerFrom(info))
	})
}

func (s *threadPerCore[H]) runWithHosts(ps *pool.Scope, f func(Worker, *HostIter[H])) {
	for i := range s.offsets {
		s.offsets[i] = 0
	}

	ps.Run(func(info pool.TaskInfo) {
		w := workerFrom(info)
		var cur entry[H]
		it := &HostIter[H]{
			next: func() (H, bool) {
				e, ok := s.take(info.Thread)
				cur = e
				return e.host, ok
			},
			done: func(H) {
				s.processed[info.Thread].push(cur)
			},
		}
		// a panicking closure still hands back the host it holds
		defer it.releaseHeld()
		f(w, it)
		it.checkExhausted(w)
	})

	for i, q := range s.toProcess {
		if n := q.len(); n != 0 {
			panic(fmt.Sprintf("threadPerCore: %d hosts left unprocessed on thread %d", n, i))
		}
	}
	s.toProcess, s.processed = s.processed, s.toProcess
}

// take pops the next host for thread, stealing once its own queue is empty.
func (s *threadPerCore[H]) take(thread int) (entry[H], bool) {
	n := len(s.toProcess)
	for s.offsets[thread] < n {
		q := s.toProcess[(thread+s.offsets[thread])%n]
		if e, ok := q.pop(); ok {
			return e, true
		}
		s.offsets[thread]++
	}
	return entry[H]{}, false
}

func (s *threadPerCore[H]) Join() []H {
	s.pool.Join()
	out := make([]H, s.numHosts)
	for _, set := range [][]*hostQueue[H]{s.toProcess, s.processed} {
		for _, q := range set {
			for e, ok := q.pop(); ok; e, ok = q.pop() {
				out[e.idx] = e.host
			}
		}
	}
	return out
}
