// Package pool provides fixed-size pools of OS threads that run one task on
// every thread per scope and block the caller until all of them return.
//
// Threads are created once and parked on a latch between scopes, so a round
// costs one latch open and one wait group, not a spawn and join per thread.
package pool

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/glycerine/idem"
	"github.com/sirupsen/logrus"

	"github.com/roundsim/roundsim/sim/latch"
)

// TaskInfo tells a task where it is running.
type TaskInfo struct {
	// Thread is the index of the pool thread, in [0, NumThreads()).
	Thread int
	// Processor is the index of the processor slot the thread occupies, in
	// [0, Parallelism()). No two tasks of one scope hold the same slot at
	// the same time, so it can index per-processor scratch data.
	Processor int
	// CPU is the CPU the thread is pinned to, or -1 when unpinned.
	CPU int
}

// Task is run once on every thread of a scope.
type Task func(TaskInfo)

// WorkerPanic carries a panic raised inside a task back to the scope caller.
type WorkerPanic struct {
	Thread int
	Value  any
	Stack  []byte
}

func (p *WorkerPanic) Error() string {
	return fmt.Sprintf("pool thread %d panicked: %v\n%s", p.Thread, p.Value, p.Stack)
}

// Pool is a fixed set of goroutines, each locked to its own OS thread.
//
// Thread-safety: Scope and Join must be called from a single goroutine.
type Pool struct {
	name        string
	threads     int
	parallelism int
	cpus        []int

	start  *latch.Latch
	halt   *idem.Halter
	done   sync.WaitGroup
	exited sync.WaitGroup

	// processor tokens; nil when every thread runs at once
	tokens chan int

	// written by the scope caller before start.Open, read by threads after Wait
	task Task
	// panics[i] is written only by thread i
	panics []*WorkerPanic
}

// NewUnbounded creates a pool of threads that all run each task concurrently.
// Thread i is pinned to cpus[i%len(cpus)]; an empty cpus disables pinning.
func NewUnbounded(name string, cpus []int, threads int) *Pool {
	return newPool(name, cpus, threads, threads, false)
}

// NewParallelismBounded creates a pool of threads that each run every task,
// but at most parallelism of them at a time. A running thread holds one of
// parallelism processor slots and is pinned to that slot's CPU.
func NewParallelismBounded(name string, cpus []int, threads, parallelism int) *Pool {
	if parallelism > threads {
		parallelism = threads
	}
	return newPool(name, cpus, threads, parallelism, true)
}

func newPool(name string, cpus []int, threads, parallelism int, bounded bool) *Pool {
	if threads < 1 {
		panic(fmt.Sprintf("pool %q: threads must be >= 1, got %d", name, threads))
	}
	if parallelism < 1 {
		panic(fmt.Sprintf("pool %q: parallelism must be >= 1, got %d", name, parallelism))
	}
	p := &Pool{
		name:        name,
		threads:     threads,
		parallelism: parallelism,
		cpus:        append([]int(nil), cpus...),
		start:       latch.New(),
		halt:        idem.NewHalterNamed("pool " + name),
		panics:      make([]*WorkerPanic, threads),
	}
	if bounded {
		p.tokens = make(chan int, parallelism)
		for i := 0; i < parallelism; i++ {
			p.tokens <- i
		}
	}
	p.exited.Add(threads)
	for i := 0; i < threads; i++ {
		// register before the goroutine starts so no Open can be missed
		w := p.start.NewWaiter(false)
		go p.work(i, w)
	}
	logrus.Debugf("pool %q: started %d threads (parallelism %d, cpus %v)", name, threads, parallelism, cpus)
	return p
}

// NumThreads returns the number of threads a task runs on per scope.
func (p *Pool) NumThreads() int { return p.threads }

// Parallelism returns how many threads may run at the same time.
func (p *Pool) Parallelism() int { return p.parallelism }

func (p *Pool) work(idx int, w *latch.Waiter) {
	defer p.exited.Done()
	// The thread is never unlocked: if it was pinned, it dies with the goroutine.
	runtime.LockOSThread()

	pinned := -1
	if p.tokens == nil && len(p.cpus) > 0 {
		pinned = p.pin(idx, p.cpus[idx%len(p.cpus)], pinned)
	}

	for {
		w.Wait()
		if p.halt.ReqStop.IsClosed() {
			w.Close()
			return
		}
		info := TaskInfo{Thread: idx, Processor: idx, CPU: pinned}
		if p.tokens != nil {
			proc := <-p.tokens
			if len(p.cpus) > 0 {
				pinned = p.pin(idx, p.cpus[proc%len(p.cpus)], pinned)
			}
			info.Processor = proc
			info.CPU = pinned
			p.runTask(info)
			p.tokens <- proc
		} else {
			p.runTask(info)
		}
		p.done.Done()
	}
}

func (p *Pool) pin(idx, cpu, current int) int {
	if cpu == current {
		return current
	}
	if err := pinToCPU(cpu); err != nil {
		logrus.Warnf("pool %q: thread %d could not be pinned to cpu %d: %v", p.name, idx, cpu, err)
		return -1
	}
	return cpu
}

func (p *Pool) runTask(info TaskInfo) {
	defer func() {
		if r := recover(); r != nil {
			p.panics[info.Thread] = &WorkerPanic{Thread: info.Thread, Value: r, Stack: debug.Stack()}
		}
	}()
	p.task(info)
}

// Scope runs f on the calling goroutine. Inside f, Scope.Run submits a task
// to every thread and blocks until all of them have returned.
//
// Panics if the pool has been joined.
func (p *Pool) Scope(f func(*Scope)) {
	if p.halt.ReqStop.IsClosed() {
		panic(fmt.Sprintf("pool %q: Scope called after Join", p.name))
	}
	f(&Scope{pool: p})
}

// Scope is valid only for the duration of the Pool.Scope callback.
type Scope struct {
	pool *Pool
	ran  bool
}

// Run executes task exactly once on every pool thread and waits for all of
// them. If any task panicked, Run re-panics with the *WorkerPanic of the
// lowest-numbered thread after every thread has finished.
//
// Panics if called twice on the same scope.
func (s *Scope) Run(task Task) {
	if s.ran {
		panic("pool.Scope.Run called more than once")
	}
	s.ran = true
	p := s.pool

	for i := range p.panics {
		p.panics[i] = nil
	}
	p.task = task
	p.done.Add(p.threads)
	p.start.Open()
	p.done.Wait()
	p.task = nil

	for _, wp := range p.panics {
		if wp != nil {
			panic(wp)
		}
	}
}

// Join stops every thread and waits for them to exit. Join is idempotent.
func (p *Pool) Join() {
	if p.halt.ReqStop.IsClosed() {
		return
	}
	p.halt.ReqStop.Close()
	p.start.Open()
	p.exited.Wait()
	p.halt.Done.Close()
	logrus.Debugf("pool %q: joined %d threads", p.name, p.threads)
}
