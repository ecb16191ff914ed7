package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundsim/roundsim/sim/pool"
)

type fakeHost struct {
	id     int
	visits atomic.Int32
}

func makeHosts(n int) []*fakeHost {
	hosts := make([]*fakeHost, n)
	for i := range hosts {
		hosts[i] = &fakeHost{id: i}
	}
	return hosts
}

// runRound visits every host once and returns how many hosts each thread saw.
func runRound(t *testing.T, s Scheduler[*fakeHost]) map[int]int {
	t.Helper()
	var mu sync.Mutex
	perThread := make(map[int]int)
	s.Scope(func(sc *Scope[*fakeHost]) {
		sc.RunWithHosts(func(w Worker, it *HostIter[*fakeHost]) {
			it.ForEach(func(h *fakeHost) {
				h.visits.Add(1)
				mu.Lock()
				perThread[w.Thread]++
				mu.Unlock()
			})
		})
	})
	return perThread
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Thread-Per-Core ")
	require.NoError(t, err)
	assert.Equal(t, ThreadPerCore, k)

	k, err = ParseKind("thread-per-host")
	require.NoError(t, err)
	assert.Equal(t, ThreadPerHost, k)

	_, err = ParseKind("round-robin")
	assert.Error(t, err)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(ThreadPerCore, 0, nil, makeHosts(2))
	assert.Error(t, err)
	_, err = New(ThreadPerHost, 2, nil, []*fakeHost{})
	assert.Error(t, err)
	_, err = New(Kind("bogus"), 2, nil, makeHosts(2))
	assert.Error(t, err)
}

// TestRunWithHosts_EveryHostOncePerRound verifies both policies hand every
// host to exactly one closure in every round.
func TestRunWithHosts_EveryHostOncePerRound(t *testing.T) {
	for _, kind := range []Kind{ThreadPerHost, ThreadPerCore} {
		t.Run(string(kind), func(t *testing.T) {
			// GIVEN 10 hosts and parallelism 3
			hosts := makeHosts(10)
			s, err := New(kind, 3, nil, hosts)
			require.NoError(t, err)
			defer s.Join()
			assert.Equal(t, 3, s.Parallelism())

			// WHEN running 5 rounds
			for round := 1; round <= 5; round++ {
				runRound(t, s)

				// THEN each host has been visited once per round
				for _, h := range hosts {
					require.Equal(t, int32(round), h.visits.Load(), "host %d in round %d", h.id, round)
				}
			}
		})
	}
}

// TestThreadPerCore_StealsFromLoadedWorker covers the case where one worker
// holds every host and the others must steal.
func TestThreadPerCore_StealsFromLoadedWorker(t *testing.T) {
	// GIVEN 3 workers with all 12 hosts queued on worker 0
	hosts := makeHosts(12)
	s := newThreadPerCore[*fakeHost](3, nil, nil)
	defer s.Join()
	s.numHosts = len(hosts)
	for i, h := range hosts {
		s.toProcess[0].push(entry[*fakeHost]{idx: i, host: h})
	}

	// WHEN one round runs
	perThread := runRound(t, s)

	// THEN every host was visited exactly once across the three workers
	total := 0
	for _, n := range perThread {
		total += n
	}
	assert.Equal(t, 12, total)
	for _, h := range hosts {
		assert.Equal(t, int32(1), h.visits.Load(), "host %d", h.id)
	}

	// AND the queues were swapped so the next round sees every host again
	runRound(t, s)
	for _, h := range hosts {
		assert.Equal(t, int32(2), h.visits.Load(), "host %d", h.id)
	}
}

func TestRunWithHosts_UnexhaustedIteratorPanics(t *testing.T) {
	for _, kind := range []Kind{ThreadPerHost, ThreadPerCore} {
		t.Run(string(kind), func(t *testing.T) {
			s, err := New(kind, 2, nil, makeHosts(4))
			require.NoError(t, err)
			defer s.Join()

			defer func() {
				r := recover()
				require.NotNil(t, r, "expected panic")
				wp, ok := r.(*pool.WorkerPanic)
				require.True(t, ok, "expected *pool.WorkerPanic, got %T", r)
				assert.Contains(t, wp.Value, "without exhausting")
			}()
			s.Scope(func(sc *Scope[*fakeHost]) {
				sc.RunWithHosts(func(Worker, *HostIter[*fakeHost]) {})
			})
		})
	}
}

func TestHostIter_NextAfterExhaustion(t *testing.T) {
	s, err := New(ThreadPerHost, 1, nil, makeHosts(1))
	require.NoError(t, err)
	defer s.Join()

	s.Scope(func(sc *Scope[*fakeHost]) {
		sc.RunWithHosts(func(_ Worker, it *HostIter[*fakeHost]) {
			h, ok := it.Next()
			if !assert.True(t, ok) {
				return
			}
			assert.Equal(t, 0, h.id)
			_, ok = it.Next()
			assert.False(t, ok)
			_, ok = it.Next()
			assert.False(t, ok)
		})
	})
}

func TestRun_OncePerThread(t *testing.T) {
	s, err := New(ThreadPerCore, 4, nil, makeHosts(2))
	require.NoError(t, err)
	defer s.Join()

	var calls atomic.Int32
	s.Scope(func(sc *Scope[*fakeHost]) {
		sc.Run(func(w Worker) {
			calls.Add(1)
			assert.Less(t, w.Processor, 4)
		})
	})
	assert.Equal(t, int32(4), calls.Load())
}

func TestThreadPerHost_ProcessorsBounded(t *testing.T) {
	// GIVEN 8 host threads sharing 2 processors
	s, err := New(ThreadPerHost, 2, nil, makeHosts(8))
	require.NoError(t, err)
	defer s.Join()

	var busy [2]atomic.Int32
	s.Scope(func(sc *Scope[*fakeHost]) {
		sc.RunWithHosts(func(w Worker, it *HostIter[*fakeHost]) {
			if !assert.Less(t, w.Processor, 2) {
				it.ForEach(func(*fakeHost) {})
				return
			}
			// THEN no two closures share a processor slot at once
			assert.Equal(t, int32(1), busy[w.Processor].Add(1))
			it.ForEach(func(h *fakeHost) { h.visits.Add(1) })
			busy[w.Processor].Add(-1)
		})
	})
}

func TestJoin_ReturnsHostsInOrder(t *testing.T) {
	for _, kind := range []Kind{ThreadPerHost, ThreadPerCore} {
		t.Run(string(kind), func(t *testing.T) {
			hosts := makeHosts(7)
			s, err := New(kind, 3, nil, hosts)
			require.NoError(t, err)
			runRound(t, s)
			runRound(t, s)

			got := s.Join()
			require.Len(t, got, 7)
			for i, h := range got {
				assert.Same(t, hosts[i], h)
			}
		})
	}
}

func TestJoin_AfterPanicReturnsEveryHost(t *testing.T) {
	for _, kind := range []Kind{ThreadPerHost, ThreadPerCore} {
		t.Run(string(kind), func(t *testing.T) {
			// GIVEN a round whose closure panics while holding host 1
			hosts := makeHosts(4)
			s, err := New(kind, 2, nil, hosts)
			require.NoError(t, err)

			func() {
				defer func() {
					_, ok := recover().(*pool.WorkerPanic)
					require.True(t, ok, "expected *pool.WorkerPanic")
				}()
				s.Scope(func(sc *Scope[*fakeHost]) {
					sc.RunWithHosts(func(w Worker, it *HostIter[*fakeHost]) {
						it.ForEach(func(h *fakeHost) {
							if h.id == 1 {
								panic("host 1 failed")
							}
						})
					})
				})
			}()

			// WHEN the scheduler is joined
			got := s.Join()

			// THEN no host is lost, the failed one included
			require.Len(t, got, 4)
			for i, h := range got {
				assert.Same(t, hosts[i], h, "slot %d", i)
			}
		})
	}
}
