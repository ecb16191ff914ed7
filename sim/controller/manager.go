package controller

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/roundsim/roundsim/sim"
	"github.com/roundsim/roundsim/sim/config"
	"github.com/roundsim/roundsim/sim/host"
	"github.com/roundsim/roundsim/sim/network"
	"github.com/roundsim/roundsim/sim/pool"
	"github.com/roundsim/roundsim/sim/runahead"
	"github.com/roundsim/roundsim/sim/scheduler"
	"github.com/roundsim/roundsim/sim/trace"
)

// Options are the parts of a run that do not come from the config file.
type Options struct {
	// Registerer receives the run's Prometheus metrics. Nil uses a private
	// registry.
	Registerer prometheus.Registerer
	Trace      trace.TraceConfig
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateFinished
)

// Manager owns the hosts and runs the round loop.
type Manager struct {
	runID       string
	kind        scheduler.Kind
	parallelism int
	cpus        []int

	controller *Controller
	router     *network.Router
	hosts      []*host.Host

	metrics *roundMetrics
	trace   *trace.SimulationTrace
	state   state
}

// NewManager builds the network, the runahead and every host described by
// cfg. cfg must already be validated.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	g := cfg.General
	kind, err := scheduler.ParseKind(g.Scheduler)
	if err != nil {
		return nil, err
	}
	parallelism := g.Parallelism
	if parallelism == 0 {
		cpus, err := pool.LogicalProcessors()
		if err != nil {
			return nil, fmt.Errorf("choosing parallelism: %w", err)
		}
		parallelism = len(cpus)
	}

	expanded, err := cfg.ExpandHosts()
	if err != nil {
		return nil, err
	}
	graph, err := buildGraph(cfg.Network, expanded, parallelism)
	if err != nil {
		return nil, err
	}
	ra, err := runahead.New(g.DynamicRunahead, graph.MinLatency(), g.Runahead.D())
	if err != nil {
		return nil, fmt.Errorf("runahead: %w", err)
	}

	m := &Manager{
		runID:       uuid.NewString(),
		kind:        kind,
		parallelism: parallelism,
		cpus:        g.CPUs,
		controller:  NewController(ra, sim.SimulationStart.Add(g.StopTime.D())),
	}
	m.router = network.NewRouter(graph, m.controller.UpdateMinRunahead)

	ids := make(map[string]sim.HostID, len(expanded))
	for i, eh := range expanded {
		ids[eh.Name] = sim.HostID(i)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(g.Seed))
	for i, eh := range expanded {
		id := sim.HostID(i)
		specs, err := appSpecs(eh.Apps, ids)
		if err != nil {
			return nil, fmt.Errorf("host %q: %w", eh.Name, err)
		}
		h, err := host.New(host.Params{ID: id, Name: eh.Name, Apps: specs, RunID: m.runID}, m.router, rng.ForHost(id))
		if err != nil {
			return nil, err
		}
		if err := m.router.Register(id, eh.Name, network.NodeID(eh.Node), h); err != nil {
			return nil, err
		}
		m.hosts = append(m.hosts, h)
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m.metrics = newRoundMetrics(reg)
	m.metrics.hosts.Set(float64(m.router.NumHosts()))
	m.trace = trace.NewSimulationTrace(opts.Trace, m.runID)

	logrus.Infof("run %s: %d hosts, scheduler %s, parallelism %d, runahead %v (dynamic %t), stop at %v",
		m.runID, m.router.NumHosts(), kind, parallelism, ra.Get(), ra.IsDynamic(), m.controller.EndTime())
	return m, nil
}

func buildGraph(nc config.Network, hosts []config.ExpandedHost, parallelism int) (*network.Graph, error) {
	nodes := make([]network.NodeID, len(nc.Nodes))
	for i, n := range nc.Nodes {
		nodes[i] = network.NodeID(n.ID)
	}
	edges := make([]network.Edge, len(nc.Edges))
	for i, e := range nc.Edges {
		edges[i] = network.Edge{
			Src:        network.NodeID(e.Src),
			Dst:        network.NodeID(e.Dst),
			Latency:    e.Latency.D(),
			PacketLoss: e.PacketLoss,
		}
	}
	g, err := network.NewGraph(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	used := make([]network.NodeID, len(hosts))
	for i, h := range hosts {
		used[i] = network.NodeID(h.Node)
	}
	if err := g.ComputePaths(used, parallelism); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	return g, nil
}

func appSpecs(apps []config.AppConfig, ids map[string]sim.HostID) ([]host.AppSpec, error) {
	specs := make([]host.AppSpec, 0, len(apps))
	for _, a := range apps {
		spec := host.AppSpec{
			Kind:     a.Kind,
			Port:     a.Port,
			Interval: a.Interval.D(),
			Count:    a.Count,
			Start:    a.Start.D(),
		}
		if a.Kind == host.AppPing {
			peer, ok := ids[a.Peer]
			if !ok {
				return nil, fmt.Errorf("unknown peer %q", a.Peer)
			}
			spec.Peer = peer
			spec.PeerPort = a.Port
			spec.Port = a.LocalPort
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// RunID returns the unique identifier of this run.
func (m *Manager) RunID() string { return m.runID }

// Trace returns the round trace; it is empty unless tracing was enabled.
func (m *Manager) Trace() *trace.SimulationTrace { return m.trace }

// Run boots every host, executes rounds until the controller reports the
// end, shuts the hosts down and returns the results.
//
// A panic in any host propagates out of Run as a *pool.WorkerPanic; the
// partial results are discarded. Panics if called more than once.
func (m *Manager) Run() (*sim.Metrics, error) {
	if m.state != stateIdle {
		panic("Manager.Run() called more than once")
	}
	m.state = stateRunning
	defer func() { m.state = stateFinished }()

	wallStart := time.Now()
	sched, err := scheduler.New(m.kind, m.parallelism, m.cpus, m.hosts)
	if err != nil {
		return nil, err
	}
	joined := false
	defer func() {
		if !joined {
			sched.Join()
		}
	}()

	r := &roundRunner{
		sched:     sched,
		nextTimes: make([]sim.EmulatedTime, sched.Parallelism()),
		events:    make([]int, sched.Parallelism()),
	}

	r.run(func(h *host.Host) int {
		h.Boot()
		return 0
	})
	minNext := sim.MinTime(r.minNextEventTime(), m.router.FinishRound())

	var (
		rounds      int
		totalEvents uint64
		simEnd      sim.EmulatedTime
	)
	for {
		start, end, ok := m.controller.ManagerFinishedCurrentRound(minNext)
		if !ok {
			break
		}
		width := m.controller.Runahead()
		m.router.StartRound(end)

		roundStart := time.Now()
		n := r.run(func(h *host.Host) int {
			return h.Execute(end)
		})
		wall := time.Since(roundStart)
		minNext = sim.MinTime(r.minNextEventTime(), m.router.FinishRound())

		rounds++
		totalEvents += uint64(n)
		simEnd = end
		m.metrics.rounds.Inc()
		m.metrics.events.Add(float64(n))
		m.metrics.roundWall.Observe(wall.Seconds())
		m.metrics.runahead.Set(width.Seconds())
		if m.trace.Enabled() {
			next := int64(minNext)
			if minNext == sim.EmulatedTimeMax {
				next = -1
			}
			m.trace.RecordRound(trace.RoundRecord{
				Index:            rounds,
				Start:            int64(start),
				End:              int64(end),
				Runahead:         width,
				MinNextEventTime: next,
				EventsExecuted:   n,
				Wall:             wall,
			})
		}
		logrus.Debugf("round %d [%v, %v): %d events, next %v", rounds, start, end, n, minNext)
	}

	r.run(func(h *host.Host) int {
		h.Shutdown()
		return 0
	})
	hosts := sched.Join()
	joined = true

	metrics := sim.NewMetrics()
	metrics.RunID = m.runID
	metrics.Scheduler = string(m.kind)
	metrics.Parallelism = sched.Parallelism()
	metrics.Rounds = rounds
	metrics.EventsExecuted = totalEvents
	metrics.SimulatedEnd = simEnd
	metrics.WallTime = time.Since(wallStart)
	for _, h := range hosts {
		metrics.Hosts = append(metrics.Hosts, sim.HostMetrics{ID: h.ID(), Name: h.Name(), HostStats: h.Stats()})
	}

	logrus.Infof("run %s: finished %d rounds, %d events, simulated %v in %v",
		m.runID, rounds, totalEvents, simEnd, metrics.WallTime)
	return metrics, nil
}

// roundRunner applies one function to every host in a scope and gathers,
// per processor slot, how many events ran and the earliest pending event.
type roundRunner struct {
	sched     scheduler.Scheduler[*host.Host]
	nextTimes []sim.EmulatedTime
	events    []int
}

func (r *roundRunner) run(f func(*host.Host) int) int {
	for i := range r.nextTimes {
		r.nextTimes[i] = sim.EmulatedTimeMax
		r.events[i] = 0
	}
	r.sched.Scope(func(s *scheduler.Scope[*host.Host]) {
		s.RunWithHosts(func(w scheduler.Worker, it *scheduler.HostIter[*host.Host]) {
			it.ForEach(func(h *host.Host) {
				h.Acquire(w.Thread)
				defer h.Release()
				r.events[w.Processor] += f(h)
				r.nextTimes[w.Processor] = sim.MinTime(r.nextTimes[w.Processor], h.NextEventTime())
			})
		})
	})
	total := 0
	for _, n := range r.events {
		total += n
	}
	return total
}

func (r *roundRunner) minNextEventTime() sim.EmulatedTime {
	next := sim.EmulatedTimeMax
	for _, t := range r.nextTimes {
		next = sim.MinTime(next, t)
	}
	return next
}
