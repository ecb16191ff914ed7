package host

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundsim/roundsim/sim"
	"github.com/roundsim/roundsim/sim/event"
)

// loopNet delivers every packet after a fixed latency.
type loopNet struct {
	hosts   map[sim.HostID]*Host
	latency time.Duration
	drop    bool
}

func (n *loopNet) Send(now sim.EmulatedTime, p *event.Packet, srcSeq uint64, _ *rand.Rand) bool {
	if n.drop {
		return false
	}
	n.hosts[p.Dst].PushPacket(event.NewPacketEvent(now.Add(n.latency), p, p.Src, srcSeq))
	return true
}

func newHost(t *testing.T, net *loopNet, id sim.HostID, apps ...AppSpec) *Host {
	t.Helper()
	h, err := New(Params{ID: id, Name: id.String(), Apps: apps, RunID: "test"}, net, rand.New(rand.NewSource(int64(id))))
	require.NoError(t, err)
	net.hosts[id] = h
	return h
}

// runRounds executes every host in fixed-width rounds up to end.
func runRounds(hosts []*Host, width time.Duration, end sim.EmulatedTime) {
	for t := sim.SimulationStart.Add(width); ; t = t.Add(width) {
		if t > end {
			t = end
		}
		for _, h := range hosts {
			h.Execute(t)
		}
		if t == end {
			return
		}
	}
}

func TestExecute_StopsAtBound(t *testing.T) {
	// GIVEN a host with a heartbeat every 10ms
	net := &loopNet{hosts: map[sim.HostID]*Host{}, latency: time.Millisecond}
	h := newHost(t, net, 0, AppSpec{Kind: AppHeartbeat, Interval: 10 * time.Millisecond})
	h.Boot()

	// WHEN executing up to 35ms
	n := h.Execute(sim.EmulatedTime(35 * time.Millisecond))

	// THEN beats at 0, 10, 20 and 30ms ran and the next one waits at 40ms
	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(4), h.Stats().Heartbeats)
	assert.Equal(t, sim.EmulatedTime(40*time.Millisecond), h.NextEventTime())
}

func TestExecute_EmptyQueue(t *testing.T) {
	net := &loopNet{hosts: map[sim.HostID]*Host{}}
	h := newHost(t, net, 0)
	h.Boot()
	assert.Equal(t, 0, h.Execute(sim.EmulatedTimeMax))
	assert.Equal(t, sim.EmulatedTimeMax, h.NextEventTime())
}

func TestHeartbeat_CountLimit(t *testing.T) {
	net := &loopNet{hosts: map[sim.HostID]*Host{}}
	h := newHost(t, net, 0, AppSpec{Kind: AppHeartbeat, Interval: time.Millisecond, Count: 3, Start: 5 * time.Millisecond})
	h.Boot()
	h.Execute(sim.EmulatedTime(time.Second))
	assert.Equal(t, uint64(3), h.Stats().Heartbeats)
	assert.Equal(t, sim.EmulatedTimeMax, h.NextEventTime())
}

// TestPingEcho_RoundTrip verifies that a ping app and an echo app exchange
// every probe and measure the path's round trip.
func TestPingEcho_RoundTrip(t *testing.T) {
	// GIVEN an echo server and a pinging client 1ms apart
	net := &loopNet{hosts: map[sim.HostID]*Host{}, latency: time.Millisecond}
	server := newHost(t, net, 0, AppSpec{Kind: AppEcho, Port: 7})
	client := newHost(t, net, 1, AppSpec{Kind: AppPing, Peer: 0, PeerPort: 7, Interval: 10 * time.Millisecond, Count: 3})
	server.Boot()
	client.Boot()

	// WHEN both run in 1ms rounds for 50ms
	runRounds([]*Host{server, client}, time.Millisecond, sim.EmulatedTime(50*time.Millisecond))

	// THEN every ping was answered with a 2ms round trip
	cs, ss := client.Stats(), server.Stats()
	assert.Equal(t, uint64(3), cs.Pings)
	assert.Equal(t, uint64(3), cs.Pongs)
	assert.Equal(t, 6*time.Millisecond, cs.RTTTotal)
	assert.Equal(t, uint64(3), ss.Echoes)
	assert.Equal(t, uint64(3), ss.PacketsReceived)
	assert.Equal(t, uint64(3), cs.PacketsSent)
}

func TestSendPacket_DropAndUnreachable(t *testing.T) {
	// GIVEN a lossy network
	net := &loopNet{hosts: map[sim.HostID]*Host{}, latency: time.Millisecond, drop: true}
	server := newHost(t, net, 0)
	client := newHost(t, net, 1, AppSpec{Kind: AppPing, Peer: 0, PeerPort: 7, Interval: time.Millisecond, Count: 2})
	server.Boot()
	client.Boot()

	// WHEN the client pings
	runRounds([]*Host{server, client}, time.Millisecond, sim.EmulatedTime(10*time.Millisecond))

	// THEN both probes are dropped
	assert.Equal(t, uint64(2), client.Stats().PacketsDropped)

	// WHEN the network delivers but nothing listens
	net.drop = false
	server.PushPacket(event.NewPacketEvent(sim.EmulatedTime(20*time.Millisecond), &event.Packet{Src: 1, Dst: 0, DstPort: 9}, 1, 99))
	server.Execute(sim.EmulatedTime(30 * time.Millisecond))

	// THEN the packet is counted as unreachable
	assert.Equal(t, uint64(1), server.Stats().PacketsUnreachable)
}

func TestShutdown_ClosesSocketsOnce(t *testing.T) {
	net := &loopNet{hosts: map[sim.HostID]*Host{}, latency: time.Millisecond}
	h := newHost(t, net, 0, AppSpec{Kind: AppEcho, Port: 7}, AppSpec{Kind: AppEcho, Port: 8})
	h.Boot()
	h.Shutdown()
	h.Shutdown()
	assert.Equal(t, uint64(2), h.Stats().SocketsClosed)
}

func TestBind_PortInUse(t *testing.T) {
	net := &loopNet{hosts: map[sim.HostID]*Host{}}
	h := newHost(t, net, 0, AppSpec{Kind: AppEcho, Port: 7})
	h.Boot()

	h.lock()
	_, err := h.Bind(7, nil)
	h.unlock()
	assert.Error(t, err)
}

func TestBoot_Twice(t *testing.T) {
	net := &loopNet{hosts: map[sim.HostID]*Host{}}
	h := newHost(t, net, 0)
	h.Boot()
	assert.Panics(t, h.Boot)
}

func TestAcquire_Exclusive(t *testing.T) {
	net := &loopNet{hosts: map[sim.HostID]*Host{}}
	h := newHost(t, net, 0)

	h.Acquire(2)
	assert.Panics(t, func() { h.Acquire(3) })
	h.Release()
	assert.Panics(t, h.Release)

	// a released host can move to another thread
	assert.NotPanics(t, func() { h.Acquire(3) })
	h.Release()
}

func TestGuard_OutsideExecutePanics(t *testing.T) {
	net := &loopNet{hosts: map[sim.HostID]*Host{}}
	h := newHost(t, net, 0)
	assert.Panics(t, func() { h.Guard() })
}

func TestNewApp_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec AppSpec
	}{
		{"unknown kind", AppSpec{Kind: "ftp"}},
		{"echo without port", AppSpec{Kind: AppEcho}},
		{"ping without peer port", AppSpec{Kind: AppPing, Interval: time.Second}},
		{"ping without interval", AppSpec{Kind: AppPing, PeerPort: 7}},
		{"heartbeat without interval", AppSpec{Kind: AppHeartbeat}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewApp(tc.spec)
			assert.Error(t, err)
		})
	}
}

// TestDigest_Reproducible runs the same exchange twice and compares digests.
func TestDigest_Reproducible(t *testing.T) {
	run := func() (uint64, uint64) {
		net := &loopNet{hosts: map[sim.HostID]*Host{}, latency: 2 * time.Millisecond}
		server := newHost(t, net, 0, AppSpec{Kind: AppEcho, Port: 7}, AppSpec{Kind: AppHeartbeat, Interval: 3 * time.Millisecond})
		client := newHost(t, net, 1, AppSpec{Kind: AppPing, Peer: 0, PeerPort: 7, Interval: 5 * time.Millisecond})
		server.Boot()
		client.Boot()
		runRounds([]*Host{client, server}, 2*time.Millisecond, sim.EmulatedTime(200*time.Millisecond))
		return server.Stats().Digest, client.Stats().Digest
	}
	s1, c1 := run()
	s2, c2 := run()
	assert.Equal(t, s1, s2)
	assert.Equal(t, c1, c2)
	assert.NotEqual(t, s1, c1)
}
