package network

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/roundsim/roundsim/sim"
	"github.com/roundsim/roundsim/sim/event"
)

// Inbox accepts packet events addressed to a host. It is called from worker
// threads other than the one running the destination host.
type Inbox interface {
	PushPacket(e event.Event)
}

type hostEntry struct {
	name  string
	node  NodeID
	inbox Inbox
}

// Router maps hosts to graph nodes and delivers packets between them.
//
// Registration happens during setup from a single goroutine; after that the
// host table is read-only and Send may be called from any worker thread.
type Router struct {
	graph *Graph
	// observe is told the latency of every delivered packet
	observe func(time.Duration)

	hosts  []hostEntry // indexed by HostID
	byName map[string]sim.HostID

	roundEnd    atomic.Int64
	minDelivery atomic.Int64
}

// NewRouter creates a Router over a graph whose paths have been computed.
// observe may be nil.
func NewRouter(g *Graph, observe func(time.Duration)) *Router {
	if observe == nil {
		observe = func(time.Duration) {}
	}
	r := &Router{graph: g, observe: observe, byName: make(map[string]sim.HostID)}
	r.minDelivery.Store(int64(sim.EmulatedTimeMax))
	return r
}

// Register attaches host id to node. Host IDs must be registered densely in
// increasing order starting at zero.
func (r *Router) Register(id sim.HostID, name string, node NodeID, inbox Inbox) error {
	if int(id) != len(r.hosts) {
		return fmt.Errorf("host %q registered as %v, expected %v", name, id, sim.HostID(len(r.hosts)))
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("duplicate host name %q", name)
	}
	if !r.graph.nodes[node] {
		return fmt.Errorf("host %q attached to unknown node %d", name, node)
	}
	r.hosts = append(r.hosts, hostEntry{name: name, node: node, inbox: inbox})
	r.byName[name] = id
	return nil
}

// NumHosts returns how many hosts are registered.
func (r *Router) NumHosts() int {
	return len(r.hosts)
}

// Path returns the route between two hosts.
func (r *Router) Path(src, dst sim.HostID) (Path, bool) {
	if int(src) >= len(r.hosts) || int(dst) >= len(r.hosts) {
		return Path{}, false
	}
	return r.graph.Path(r.hosts[src].node, r.hosts[dst].node)
}

// StartRound must be called by the round loop, before workers start, with
// the exclusive end of the round about to run.
func (r *Router) StartRound(end sim.EmulatedTime) {
	r.roundEnd.Store(int64(end))
	r.minDelivery.Store(int64(sim.EmulatedTimeMax))
}

// FinishRound returns the earliest delivery time of any packet sent during
// the round, or EmulatedTimeMax if none was sent.
func (r *Router) FinishRound() sim.EmulatedTime {
	return sim.EmulatedTime(r.minDelivery.Load())
}

// Send routes p from its source host at now. Loss is decided with rng, the
// sender's private stream, and only drawn on lossy paths. The delivery time
// is never earlier than the end of the current round, since the destination
// may already have run past it.
//
// Returns false if the packet was dropped. Panics if either host is unknown.
func (r *Router) Send(now sim.EmulatedTime, p *event.Packet, srcSeq uint64, rng *rand.Rand) bool {
	path, ok := r.Path(p.Src, p.Dst)
	if !ok {
		panic(fmt.Sprintf("Router.Send: no route from %v to %v", p.Src, p.Dst))
	}
	if !path.reliable() && rng.Float64() >= path.Reliability {
		return false
	}

	r.observe(path.Latency)
	deliver := max(now.Add(path.Latency), sim.EmulatedTime(r.roundEnd.Load()))
	r.hosts[p.Dst].inbox.PushPacket(event.NewPacketEvent(deliver, p, p.Src, srcSeq))

	for {
		cur := r.minDelivery.Load()
		if int64(deliver) >= cur || r.minDelivery.CompareAndSwap(cur, int64(deliver)) {
			break
		}
	}
	return true
}
