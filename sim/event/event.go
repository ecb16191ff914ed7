// Package event defines the events a host executes and the per-host queue
// that orders them.
//
// Ordering is total and independent of insertion order:
// time, then kind (packets before local tasks), then (source host, sequence)
// for packets or sequence for local tasks. Two events that tie on all of
// those but carry different payloads have no defined order; comparing them
// panics instead of guessing.
package event

import (
	"cmp"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roundsim/roundsim/sim"
)

// Kind discriminates the payload of an Event. The numeric order is the
// tie-break order at equal times.
type Kind uint8

const (
	KindPacket Kind = iota
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindPacket:
		return "packet"
	case KindLocal:
		return "local"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Packet is a datagram travelling between two hosts.
type Packet struct {
	Src     sim.HostID
	Dst     sim.HostID
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

func (p *Packet) String() string {
	return fmt.Sprintf("%v:%d->%v:%d (%dB)", p.Src, p.SrcPort, p.Dst, p.DstPort, len(p.Payload))
}

// HostContext is the view of a host available to running tasks.
type HostContext interface {
	ID() sim.HostID
	Now() sim.EmulatedTime
	// ScheduleTask runs task on this host after delay.
	ScheduleTask(delay time.Duration, task *TaskRef)
	// SendPacket hands p to the network. p.Src is overwritten with ID().
	SendPacket(p *Packet)
	// RNG is the host's private deterministic stream.
	RNG() *rand.Rand
	Log() *logrus.Entry
}

// TaskRef is a shareable host-local callback. Two TaskRefs are the same task
// only if they are the same pointer.
type TaskRef struct {
	name string
	fn   func(HostContext)
}

// NewTaskRef wraps fn. name is used only for logging.
func NewTaskRef(name string, fn func(HostContext)) *TaskRef {
	if fn == nil {
		panic("NewTaskRef: fn must not be nil")
	}
	return &TaskRef{name: name, fn: fn}
}

// Execute runs the task against h.
func (t *TaskRef) Execute(h HostContext) {
	t.fn(h)
}

func (t *TaskRef) String() string {
	return t.name
}

// PacketData is the payload of a packet delivery event.
type PacketData struct {
	Packet  *Packet
	SrcHost sim.HostID
	// SrcSeq is unique per source host.
	SrcSeq uint64
}

// LocalData is the payload of a host-local task event.
type LocalData struct {
	Task *TaskRef
	// Seq is unique per host.
	Seq uint64
}

// Event is a timestamped unit of work for one host. Exactly one of the
// payloads is set, selected by Kind.
type Event struct {
	time   sim.EmulatedTime
	kind   Kind
	packet PacketData
	local  LocalData
}

// NewPacketEvent creates a packet delivery at t.
func NewPacketEvent(t sim.EmulatedTime, p *Packet, srcHost sim.HostID, srcSeq uint64) Event {
	if p == nil {
		panic("NewPacketEvent: packet must not be nil")
	}
	return Event{time: t, kind: KindPacket, packet: PacketData{Packet: p, SrcHost: srcHost, SrcSeq: srcSeq}}
}

// NewLocalEvent creates a local task execution at t.
func NewLocalEvent(t sim.EmulatedTime, task *TaskRef, seq uint64) Event {
	if task == nil {
		panic("NewLocalEvent: task must not be nil")
	}
	return Event{time: t, kind: KindLocal, local: LocalData{Task: task, Seq: seq}}
}

// Time returns when the event fires.
func (e Event) Time() sim.EmulatedTime { return e.time }

// Kind returns which payload the event carries.
func (e Event) Kind() Kind { return e.kind }

// Packet returns the packet payload, if any.
func (e Event) Packet() (PacketData, bool) {
	return e.packet, e.kind == KindPacket
}

// Local returns the local task payload, if any.
func (e Event) Local() (LocalData, bool) {
	return e.local, e.kind == KindLocal
}

func (e Event) String() string {
	switch e.kind {
	case KindPacket:
		return fmt.Sprintf("packet@%v(%v#%d %v)", e.time, e.packet.SrcHost, e.packet.SrcSeq, e.packet.Packet)
	default:
		return fmt.Sprintf("local@%v(#%d %v)", e.time, e.local.Seq, e.local.Task)
	}
}

// Compare returns -1, 0 or +1 as a sorts before, equal to, or after b.
//
// Panics if a and b tie on every ordering key but carry different payloads:
// such events have no reproducible order.
func Compare(a, b Event) int {
	if c := cmp.Compare(a.time, b.time); c != 0 {
		return c
	}
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	switch a.kind {
	case KindPacket:
		if c := cmp.Compare(a.packet.SrcHost, b.packet.SrcHost); c != 0 {
			return c
		}
		if c := cmp.Compare(a.packet.SrcSeq, b.packet.SrcSeq); c != 0 {
			return c
		}
		if a.packet.Packet != b.packet.Packet {
			panic(fmt.Sprintf("event.Compare: unordered packet events %v and %v", a, b))
		}
	case KindLocal:
		if c := cmp.Compare(a.local.Seq, b.local.Seq); c != 0 {
			return c
		}
		if a.local.Task != b.local.Task {
			panic(fmt.Sprintf("event.Compare: unordered local events %v and %v", a, b))
		}
	}
	return 0
}
