// Package network holds the topology and routing tables shared by all
// hosts. Everything here is built once before the first round and read
// concurrently, without locks, afterwards.
package network

import (
	"container/heap"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// NodeID identifies a vertex of the network graph.
type NodeID uint32

// Edge is an undirected link between two nodes. Src == Dst is a self-loop,
// which carries traffic between hosts attached to the same node.
type Edge struct {
	Src        NodeID
	Dst        NodeID
	Latency    time.Duration
	PacketLoss float64
}

// Path is the route between two nodes.
type Path struct {
	Latency time.Duration
	// Reliability is the probability a packet survives every hop.
	Reliability float64
}

type nodePair struct{ src, dst NodeID }

// Graph is the network topology plus the shortest paths between the nodes
// that have hosts attached.
type Graph struct {
	nodes map[NodeID]bool
	adj   map[NodeID][]Edge
	self  map[NodeID]Edge
	paths map[nodePair]Path
}

// NewGraph validates nodes and edges.
func NewGraph(nodes []NodeID, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes: make(map[NodeID]bool, len(nodes)),
		adj:   make(map[NodeID][]Edge),
		self:  make(map[NodeID]Edge),
		paths: make(map[nodePair]Path),
	}
	for _, n := range nodes {
		if g.nodes[n] {
			return nil, fmt.Errorf("duplicate node %d", n)
		}
		g.nodes[n] = true
	}
	for i, e := range edges {
		if !g.nodes[e.Src] || !g.nodes[e.Dst] {
			return nil, fmt.Errorf("edge %d (%d-%d) references an unknown node", i, e.Src, e.Dst)
		}
		if e.Latency <= 0 {
			return nil, fmt.Errorf("edge %d (%d-%d): latency must be positive, got %v", i, e.Src, e.Dst, e.Latency)
		}
		if e.PacketLoss < 0 || e.PacketLoss >= 1 {
			return nil, fmt.Errorf("edge %d (%d-%d): packet loss must be in [0, 1), got %v", i, e.Src, e.Dst, e.PacketLoss)
		}
		if e.Src == e.Dst {
			if old, ok := g.self[e.Src]; !ok || e.Latency < old.Latency {
				g.self[e.Src] = e
			}
			continue
		}
		g.adj[e.Src] = append(g.adj[e.Src], e)
		g.adj[e.Dst] = append(g.adj[e.Dst], Edge{Src: e.Dst, Dst: e.Src, Latency: e.Latency, PacketLoss: e.PacketLoss})
	}
	return g, nil
}

// ComputePaths fills the routing table for every ordered pair of used nodes,
// running one shortest-path search per source with at most parallelism
// searches at once. Every used node needs a self-loop so that hosts sharing a
// node can reach each other.
func (g *Graph) ComputePaths(used []NodeID, parallelism int) error {
	used = sortedUnique(used)
	for _, n := range used {
		if !g.nodes[n] {
			return fmt.Errorf("node %d is not in the graph", n)
		}
		if _, ok := g.self[n]; !ok {
			return fmt.Errorf("node %d has hosts attached but no self-loop edge", n)
		}
	}

	results := make([]map[NodeID]Path, len(used))
	var eg errgroup.Group
	eg.SetLimit(max(parallelism, 1))
	for i, src := range used {
		eg.Go(func() error {
			paths, err := g.shortestPaths(src, used)
			results[i] = paths
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, src := range used {
		for dst, p := range results[i] {
			g.paths[nodePair{src, dst}] = p
		}
	}
	return nil
}

// Path returns the route from src to dst, if ComputePaths produced one.
func (g *Graph) Path(src, dst NodeID) (Path, bool) {
	p, ok := g.paths[nodePair{src, dst}]
	return p, ok
}

// MinLatency returns the smallest latency of any computed path, or zero if
// none has been computed.
func (g *Graph) MinLatency() time.Duration {
	var lowest time.Duration
	for _, p := range g.paths {
		if lowest == 0 || p.Latency < lowest {
			lowest = p.Latency
		}
	}
	return lowest
}

// shortestPaths runs Dijkstra from src and returns paths to every target.
func (g *Graph) shortestPaths(src NodeID, targets []NodeID) (map[NodeID]Path, error) {
	dist := map[NodeID]time.Duration{src: 0}
	rel := map[NodeID]float64{src: 1}
	done := make(map[NodeID]bool)

	pq := &distQueue{{node: src, dist: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(distItem)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true
		for _, e := range g.adj[cur.node] {
			nd := cur.dist + e.Latency
			if old, ok := dist[e.Dst]; ok && nd >= old {
				continue
			}
			dist[e.Dst] = nd
			rel[e.Dst] = rel[cur.node] * (1 - e.PacketLoss)
			heap.Push(pq, distItem{node: e.Dst, dist: nd})
		}
	}

	out := make(map[NodeID]Path, len(targets))
	for _, dst := range targets {
		if dst == src {
			e := g.self[src]
			out[dst] = Path{Latency: e.Latency, Reliability: 1 - e.PacketLoss}
			continue
		}
		d, ok := dist[dst]
		if !ok {
			return nil, fmt.Errorf("no path from node %d to node %d", src, dst)
		}
		out[dst] = Path{Latency: d, Reliability: rel[dst]}
	}
	return out, nil
}

type distItem struct {
	node NodeID
	dist time.Duration
}

// distQueue implements heap.Interface; ties break on node id so paths are
// chosen deterministically.
type distQueue []distItem

func (q distQueue) Len() int { return len(q) }
func (q distQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q distQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *distQueue) Push(x any)   { *q = append(*q, x.(distItem)) }
func (q *distQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func sortedUnique(nodes []NodeID) []NodeID {
	out := append([]NodeID(nil), nodes...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

// reliable reports whether a path never drops packets.
func (p Path) reliable() bool {
	return p.Reliability >= 1
}
