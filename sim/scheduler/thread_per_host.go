package scheduler

import (
	"github.com/roundsim/roundsim/sim/pool"
)

// threadPerHost binds host i to pool thread i for the whole run.
type threadPerHost[H any] struct {
	pool  *pool.Pool
	hosts []H
}

func newThreadPerHost[H any](parallelism int, cpus []int, hosts []H) *threadPerHost[H] {
	return &threadPerHost[H]{
		pool:  pool.NewParallelismBounded("thread-per-host", cpus, len(hosts), parallelism),
		hosts: append([]H(nil), hosts...),
	}
}

func (s *threadPerHost[H]) Parallelism() int {
	return s.pool.Parallelism()
}

func (s *threadPerHost[H]) Scope(f func(*Scope[H])) {
	s.pool.Scope(func(ps *pool.Scope) {
		f(&Scope[H]{ps: ps, runner: s})
	})
}

func (s *threadPerHost[H]) run(ps *pool.Scope, f func(Worker)) {
	ps.Run(func(info pool.TaskInfo) {
		f(workerFrom(info))
	})
}

func (s *threadPerHost[H]) runWithHosts(ps *pool.Scope, f func(Worker, *HostIter[H])) {
	ps.Run(func(info pool.TaskInfo) {
		w := workerFrom(info)
		given := false
		it := &HostIter[H]{
			next: func() (H, bool) {
				if given {
					var zero H
					return zero, false
				}
				given = true
				return s.hosts[info.Thread], true
			},
			done: func(H) {},
		}
		f(w, it)
		it.checkExhausted(w)
	})
}

func (s *threadPerHost[H]) Join() []H {
	s.pool.Join()
	return s.hosts
}
