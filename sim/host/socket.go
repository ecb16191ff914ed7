package host

import (
	"github.com/roundsim/roundsim/sim"
	"github.com/roundsim/roundsim/sim/event"
	"github.com/roundsim/roundsim/sim/rooted"
)

// Socket is a datagram endpoint bound to one port. It is shared between the
// host's port table and the application that bound it, through rooted.Rc
// handles, so every access happens under the host's Root.
type Socket struct {
	host *Host
	port uint16
	recv *rooted.RefCell[[]*event.Packet]
	// total datagrams ever queued
	received *rooted.Cell[uint64]

	onReadable func(*Host, *Socket)
}

func newSocket(h *Host, port uint16, onReadable func(*Host, *Socket)) *Socket {
	return &Socket{
		host:       h,
		port:       port,
		recv:       rooted.NewRefCell[[]*event.Packet](h.root, nil),
		received:   rooted.NewCell[uint64](h.root, 0),
		onReadable: onReadable,
	}
}

// Port returns the bound port.
func (s *Socket) Port() uint16 { return s.port }

func (s *Socket) enqueue(g *rooted.Guard, p *event.Packet) {
	buf := s.recv.BorrowMut(g)
	*buf.Get() = append(*buf.Get(), p)
	buf.Release(g)
	s.received.Set(g, s.received.Get(g)+1)
}

// Received returns how many datagrams were ever queued on the socket.
func (s *Socket) Received(g *rooted.Guard) uint64 {
	return s.received.Get(g)
}

// RecvAll removes and returns every waiting datagram in arrival order.
func (s *Socket) RecvAll(g *rooted.Guard) []*event.Packet {
	buf := s.recv.BorrowMut(g)
	defer buf.Release(g)
	out := *buf.Get()
	*buf.Get() = nil
	return out
}

// SendTo sends payload from this socket to dst:port.
func (s *Socket) SendTo(dst sim.HostID, port uint16, payload []byte) {
	s.host.SendPacket(&event.Packet{
		Dst:     dst,
		SrcPort: s.port,
		DstPort: port,
		Payload: payload,
	})
}

// Drop runs when the last handle is released.
func (s *Socket) Drop() {
	s.host.stats.SocketsClosed++
	if n := len(*s.recv.GetMut()); n > 0 {
		s.host.log.Debugf("socket %d closed with %d unread datagrams", s.port, n)
	}
}
