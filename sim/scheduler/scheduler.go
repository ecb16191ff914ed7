// Package scheduler assigns hosts to the threads of a worker pool and runs
// one round at a time across them.
//
// Two policies are provided. ThreadPerHost gives every host its own thread
// for the whole run and bounds how many run at once. ThreadPerCore runs one
// thread per processor; threads take hosts from per-thread queues, steal from
// each other when their own queue is empty, and the queues are rebuilt from
// where each host ended up once the round is over.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/roundsim/roundsim/sim/pool"
)

// Kind selects a scheduling policy.
type Kind string

const (
	ThreadPerHost Kind = "thread-per-host"
	ThreadPerCore Kind = "thread-per-core"
)

// ParseKind accepts a policy name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case ThreadPerHost, ThreadPerCore:
		return k, nil
	default:
		return "", fmt.Errorf("unknown scheduler %q (want %q or %q)", s, ThreadPerHost, ThreadPerCore)
	}
}

// Worker identifies the thread a closure is running on.
type Worker struct {
	Thread int
	// Processor is in [0, Parallelism()) and unique among the closures
	// running at any instant, so it may index per-processor data without
	// locking.
	Processor int
	// CPU is the pinned CPU, or -1.
	CPU int
}

func workerFrom(info pool.TaskInfo) Worker {
	return Worker{Thread: info.Thread, Processor: info.Processor, CPU: info.CPU}
}

// Scheduler runs closures on worker threads, optionally handing each thread
// the hosts it must process this round.
//
// Thread-safety: Scope and Join must be called from one goroutine.
type Scheduler[H any] interface {
	// Parallelism is the number of processor slots.
	Parallelism() int
	// Scope runs f; inside it the scope may be run once.
	Scope(f func(*Scope[H]))
	// Join stops the worker threads and returns every host in the order the
	// scheduler was given them.
	Join() []H
}

type runner[H any] interface {
	run(ps *pool.Scope, f func(Worker))
	runWithHosts(ps *pool.Scope, f func(Worker, *HostIter[H]))
}

// Scope is valid only inside the Scheduler.Scope callback.
type Scope[H any] struct {
	ps     *pool.Scope
	runner runner[H]
}

// Run executes f once on every worker thread and blocks until all return.
// A panic in any f is re-raised here once every thread has finished.
func (s *Scope[H]) Run(f func(Worker)) {
	s.runner.run(s.ps, f)
}

// RunWithHosts is Run, with each closure also receiving an iterator over
// hosts to process. Across all closures every host is returned exactly once.
// A closure that returns before exhausting its iterator panics.
func (s *Scope[H]) RunWithHosts(f func(Worker, *HostIter[H])) {
	s.runner.runWithHosts(s.ps, f)
}

// HostIter yields the hosts a worker must process this round.
type HostIter[H any] struct {
	next func() (H, bool)
	// done is called once per host when the caller has finished with it.
	done func(H)

	cur       H
	holding   bool
	exhausted bool
}

// Next finishes the host returned by the previous call and yields the next
// one. It returns false once no hosts remain.
func (it *HostIter[H]) Next() (H, bool) {
	if it.holding {
		it.done(it.cur)
		var zero H
		it.cur, it.holding = zero, false
	}
	if it.exhausted {
		var zero H
		return zero, false
	}
	h, ok := it.next()
	if !ok {
		it.exhausted = true
		return h, false
	}
	it.cur, it.holding = h, true
	return h, true
}

// ForEach calls f on every remaining host.
func (it *HostIter[H]) ForEach(f func(H)) {
	for h, ok := it.Next(); ok; h, ok = it.Next() {
		f(h)
	}
}

// releaseHeld finishes the current host, if any, without advancing. It runs
// when a worker unwinds early so the host is not lost.
func (it *HostIter[H]) releaseHeld() {
	if it.holding {
		it.done(it.cur)
		var zero H
		it.cur, it.holding = zero, false
	}
}

func (it *HostIter[H]) checkExhausted(w Worker) {
	if !it.exhausted {
		panic(fmt.Sprintf("scheduler: worker thread %d returned without exhausting its HostIter", w.Thread))
	}
}

// New creates a scheduler of the given kind over hosts. For ThreadPerHost,
// parallelism bounds how many host threads run at once; for ThreadPerCore it
// is the number of threads. cpus lists the CPUs to pin threads to, and may
// be empty.
func New[H any](kind Kind, parallelism int, cpus []int, hosts []H) (Scheduler[H], error) {
	if parallelism < 1 {
		return nil, fmt.Errorf("parallelism must be >= 1, got %d", parallelism)
	}
	switch kind {
	case ThreadPerHost:
		if len(hosts) == 0 {
			return nil, fmt.Errorf("%s scheduler needs at least one host", kind)
		}
		return newThreadPerHost(parallelism, cpus, hosts), nil
	case ThreadPerCore:
		return newThreadPerCore(parallelism, cpus, hosts), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", kind)
	}
}
