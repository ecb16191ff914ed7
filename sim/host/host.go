// Package host implements the simulated machine: the unit the scheduler hands
// to worker threads.
//
// A Host owns one rooted.Root and one event queue. During a round exactly one
// worker executes the host, holding its Root lock for the whole Execute call.
// Other workers may only push packet events into its queue, which is guarded
// by a plain mutex and only ever receives events at or after the round end.
package host

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roundsim/roundsim/sim"
	"github.com/roundsim/roundsim/sim/event"
	"github.com/roundsim/roundsim/sim/rooted"
)

// Network delivers packets between hosts.
type Network interface {
	// Send routes p at now. It returns false if the packet was dropped.
	Send(now sim.EmulatedTime, p *event.Packet, srcSeq uint64, rng *rand.Rand) bool
}

// Params configures a Host.
type Params struct {
	ID   sim.HostID
	Name string
	Apps []AppSpec
	// RunID is attached to every log line of the host.
	RunID string
}

// Host is a simulated machine.
type Host struct {
	id   sim.HostID
	name string
	root *rooted.Root
	net  Network
	rng  *rand.Rand
	log  *logrus.Entry

	// queue receives pushes from other workers
	mu    sync.Mutex
	queue *event.Queue

	// worker thread currently owning the host, plus one; zero when idle
	owner atomic.Int64

	// Everything below is touched only by the owning worker.
	guard     *rooted.Guard
	now       sim.EmulatedTime
	localSeq  uint64
	packetSeq uint64
	ports     map[uint16]*rooted.Rc[*Socket]
	apps      []App
	stats     sim.HostStats
	digest    hash.Hash64
	booted    bool
	shutdown  bool
}

// New creates a host. Apps are built but not started until Boot.
func New(p Params, net Network, rng *rand.Rand) (*Host, error) {
	apps := make([]App, 0, len(p.Apps))
	for i, spec := range p.Apps {
		app, err := NewApp(spec)
		if err != nil {
			return nil, fmt.Errorf("host %q app %d: %w", p.Name, i, err)
		}
		apps = append(apps, app)
	}
	return &Host{
		id:     p.ID,
		name:   p.Name,
		root:   rooted.NewRoot(),
		net:    net,
		rng:    rng,
		log:    logrus.WithFields(logrus.Fields{"host": p.Name, "run": p.RunID}),
		queue:  event.NewQueue(),
		ports:  make(map[uint16]*rooted.Rc[*Socket]),
		apps:   apps,
		digest: fnv.New64a(),
	}, nil
}

// ID returns the host's identifier.
func (h *Host) ID() sim.HostID { return h.id }

// Name returns the configured host name.
func (h *Host) Name() string { return h.name }

// Root returns the host's lock domain.
func (h *Host) Root() *rooted.Root { return h.root }

// Now returns the time of the event being executed.
func (h *Host) Now() sim.EmulatedTime { return h.now }

// RNG returns the host's private random stream.
func (h *Host) RNG() *rand.Rand { return h.rng }

// Log returns the host's logger.
func (h *Host) Log() *logrus.Entry { return h.log }

// Stats returns a snapshot of the host's counters.
func (h *Host) Stats() sim.HostStats {
	s := h.stats
	s.Digest = h.digest.Sum64()
	return s
}

// Acquire marks the host as owned by worker thread. Panics if another worker
// already owns it: two workers must never run one host.
func (h *Host) Acquire(thread int) {
	if !h.owner.CompareAndSwap(0, int64(thread)+1) {
		panic(fmt.Sprintf("Host.Acquire: %v acquired by thread %d while owned by thread %d",
			h.id, thread, h.owner.Load()-1))
	}
}

// Release ends the current owner's claim. Panics if the host is not owned.
func (h *Host) Release() {
	if h.owner.Swap(0) == 0 {
		panic(fmt.Sprintf("Host.Release: %v is not owned", h.id))
	}
}

// Boot starts the host's applications. Panics if called twice.
func (h *Host) Boot() {
	if h.booted {
		panic(fmt.Sprintf("Host.Boot() called more than once on %v", h.id))
	}
	h.booted = true
	h.lock()
	defer h.unlock()
	for _, app := range h.apps {
		app.Start(h)
	}
	h.log.Debugf("booted with %d apps", len(h.apps))
}

// Shutdown stops the applications and closes every socket.
func (h *Host) Shutdown() {
	if h.shutdown {
		return
	}
	h.shutdown = true
	h.lock()
	defer h.unlock()
	for _, app := range h.apps {
		app.Stop(h)
	}
	for port, rc := range h.ports {
		rc.SafelyDrop(h.guard)
		delete(h.ports, port)
	}
	h.mu.Lock()
	pending := h.queue.Len()
	h.mu.Unlock()
	h.log.Debugf("shut down with %d pending events", pending)
}

// PushPacket queues a packet delivery. Safe to call from any goroutine.
func (h *Host) PushPacket(e event.Event) {
	h.mu.Lock()
	h.queue.Push(e)
	h.mu.Unlock()
}

// NextEventTime returns the time of the earliest queued event, or
// EmulatedTimeMax when the queue is empty.
func (h *Host) NextEventTime() sim.EmulatedTime {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.queue.NextEventTime(); ok {
		return t
	}
	return sim.EmulatedTimeMax
}

// Execute runs every queued event earlier than until, in queue order, and
// returns how many ran. The host's Root stays locked throughout.
func (h *Host) Execute(until sim.EmulatedTime) int {
	h.lock()
	defer h.unlock()

	n := 0
	for {
		h.mu.Lock()
		t, ok := h.queue.NextEventTime()
		if !ok || t >= until {
			h.mu.Unlock()
			break
		}
		ev, _ := h.queue.Pop()
		h.mu.Unlock()

		h.now = ev.Time()
		h.record(ev)
		h.dispatch(ev)
		n++
	}
	return n
}

func (h *Host) dispatch(ev event.Event) {
	if data, ok := ev.Local(); ok {
		h.stats.LocalEvents++
		data.Task.Execute(h)
		return
	}
	data, _ := ev.Packet()
	h.deliver(data.Packet)
}

func (h *Host) deliver(p *event.Packet) {
	rc, ok := h.ports[p.DstPort]
	if !ok {
		h.stats.PacketsUnreachable++
		h.log.Debugf("%v: no socket on port %d", h.now, p.DstPort)
		return
	}
	h.stats.PacketsReceived++
	sock := rc.Get()
	sock.enqueue(h.guard, p)
	if sock.onReadable != nil {
		sock.onReadable(h, sock)
	}
}

// record folds ev into the digest.
func (h *Host) record(ev event.Event) {
	h.stats.EventsExecuted++
	var buf [25]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(ev.Time()))
	buf[8] = byte(ev.Kind())
	if data, ok := ev.Packet(); ok {
		binary.LittleEndian.PutUint64(buf[9:], uint64(data.SrcHost))
		binary.LittleEndian.PutUint64(buf[17:], data.SrcSeq)
	} else {
		data, _ := ev.Local()
		binary.LittleEndian.PutUint64(buf[17:], data.Seq)
	}
	h.digest.Write(buf[:])
}

// ScheduleTask queues task to run delay after the current time.
func (h *Host) ScheduleTask(delay time.Duration, task *event.TaskRef) {
	h.localSeq++
	ev := event.NewLocalEvent(h.now.Add(delay), task, h.localSeq)
	h.mu.Lock()
	h.queue.Push(ev)
	h.mu.Unlock()
}

// SendPacket hands p to the network with this host as the source.
func (h *Host) SendPacket(p *event.Packet) {
	p.Src = h.id
	h.packetSeq++
	if h.net.Send(h.now, p, h.packetSeq, h.rng) {
		h.stats.PacketsSent++
	} else {
		h.stats.PacketsDropped++
	}
}

// Bind opens a socket on port and returns a handle the caller owns and must
// release with CloseSocket. Returns an error if the port is in use.
func (h *Host) Bind(port uint16, onReadable func(*Host, *Socket)) (*rooted.Rc[*Socket], error) {
	if _, used := h.ports[port]; used {
		return nil, fmt.Errorf("%v: port %d already bound", h.id, port)
	}
	sock := newSocket(h, port, onReadable)
	rc := rooted.NewRc(h.root, sock)
	h.ports[port] = rc.Clone(h.guard)
	return rc, nil
}

// CloseSocket releases a handle returned by Bind. The socket is closed once
// the host drops its own handle too.
func (h *Host) CloseSocket(rc *rooted.Rc[*Socket]) {
	rc.SafelyDrop(h.guard)
}

// Guard returns the proof that the Root is held. Only valid inside Boot,
// Execute or Shutdown.
func (h *Host) Guard() *rooted.Guard {
	if h.guard == nil {
		panic(fmt.Sprintf("Host.Guard: %v is not locked", h.id))
	}
	return h.guard
}

func (h *Host) lock() {
	h.guard = h.root.Lock()
}

func (h *Host) unlock() {
	g := h.guard
	h.guard = nil
	g.Unlock()
}

func (h *Host) String() string {
	return fmt.Sprintf("%s(%v)", h.name, h.id)
}

var _ event.HostContext = (*Host)(nil)
