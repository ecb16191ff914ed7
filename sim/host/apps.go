package host

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/roundsim/roundsim/sim"
	"github.com/roundsim/roundsim/sim/event"
	"github.com/roundsim/roundsim/sim/rooted"
)

// App kinds accepted by NewApp.
const (
	AppEcho      = "echo"
	AppPing      = "ping"
	AppHeartbeat = "heartbeat"
)

// AppSpec describes one application instance.
type AppSpec struct {
	Kind string
	// Port is the local port; ping picks DefaultPingPort when zero.
	Port     uint16
	Peer     sim.HostID
	PeerPort uint16
	Interval time.Duration
	// Count limits how many pings or heartbeats are emitted; zero means no
	// limit.
	Count int
	// Start is the delay after boot before the first emission.
	Start time.Duration
}

// DefaultPingPort is the local port of a ping app with no port configured.
const DefaultPingPort = 40000

// App runs on a host between Boot and Shutdown. Start and Stop are called
// with the host's Root locked.
type App interface {
	Start(h *Host)
	Stop(h *Host)
}

// NewApp builds the app described by spec.
func NewApp(spec AppSpec) (App, error) {
	switch spec.Kind {
	case AppEcho:
		if spec.Port == 0 {
			return nil, fmt.Errorf("echo app needs a port")
		}
		return &echoApp{port: spec.Port}, nil
	case AppPing:
		if spec.PeerPort == 0 {
			return nil, fmt.Errorf("ping app needs a peer port")
		}
		if spec.Interval <= 0 {
			return nil, fmt.Errorf("ping app needs a positive interval, got %v", spec.Interval)
		}
		port := spec.Port
		if port == 0 {
			port = DefaultPingPort
		}
		return &pingApp{spec: spec, port: port}, nil
	case AppHeartbeat:
		if spec.Interval <= 0 {
			return nil, fmt.Errorf("heartbeat app needs a positive interval, got %v", spec.Interval)
		}
		return &heartbeatApp{spec: spec}, nil
	default:
		return nil, fmt.Errorf("unknown app kind %q", spec.Kind)
	}
}

// echoApp sends every datagram back to its sender.
type echoApp struct {
	port uint16
	sock *rooted.Rc[*Socket]
}

func (a *echoApp) Start(h *Host) {
	sock, err := h.Bind(a.port, a.onReadable)
	if err != nil {
		panic(fmt.Sprintf("echo: %v", err))
	}
	a.sock = sock
}

func (a *echoApp) onReadable(h *Host, s *Socket) {
	for _, p := range s.RecvAll(h.Guard()) {
		s.SendTo(p.Src, p.SrcPort, p.Payload)
		h.stats.Echoes++
	}
}

func (a *echoApp) Stop(h *Host) {
	h.CloseSocket(a.sock)
	a.sock = nil
}

// pingApp sends a numbered probe to its peer every interval and measures the
// round trip of each reply. The payload carries the send time.
type pingApp struct {
	spec AppSpec
	port uint16
	sock *rooted.Rc[*Socket]
	task *event.TaskRef
	sent int
}

func (a *pingApp) Start(h *Host) {
	sock, err := h.Bind(a.port, a.onReadable)
	if err != nil {
		panic(fmt.Sprintf("ping: %v", err))
	}
	a.sock = sock
	a.task = event.NewTaskRef("ping", a.fire)
	h.ScheduleTask(a.spec.Start, a.task)
}

func (a *pingApp) fire(ctx event.HostContext) {
	if a.sock == nil {
		return
	}
	h := ctx.(*Host)
	payload := make([]byte, 16)
	binary.BigEndian.PutUint64(payload[0:], uint64(a.sent))
	binary.BigEndian.PutUint64(payload[8:], uint64(h.Now()))
	a.sock.Get().SendTo(a.spec.Peer, a.spec.PeerPort, payload)
	a.sent++
	h.stats.Pings++

	if a.spec.Count == 0 || a.sent < a.spec.Count {
		h.ScheduleTask(a.spec.Interval, a.task)
	}
}

func (a *pingApp) onReadable(h *Host, s *Socket) {
	for _, p := range s.RecvAll(h.Guard()) {
		if len(p.Payload) < 16 {
			continue
		}
		sentAt := sim.EmulatedTime(binary.BigEndian.Uint64(p.Payload[8:]))
		rtt := h.Now().Sub(sentAt)
		h.stats.Pongs++
		h.stats.RTTTotal += rtt
		h.log.Tracef("%v: pong %d rtt %v", h.Now(), binary.BigEndian.Uint64(p.Payload), rtt)
	}
}

func (a *pingApp) Stop(h *Host) {
	h.CloseSocket(a.sock)
	a.sock = nil
}

// heartbeatApp fires a local timer every interval.
type heartbeatApp struct {
	spec  AppSpec
	task  *event.TaskRef
	beats int
	done  bool
}

func (a *heartbeatApp) Start(h *Host) {
	a.task = event.NewTaskRef("heartbeat", a.beat)
	h.ScheduleTask(a.spec.Start, a.task)
}

func (a *heartbeatApp) beat(ctx event.HostContext) {
	if a.done {
		return
	}
	a.beats++
	ctx.(*Host).stats.Heartbeats++
	ctx.Log().Tracef("%v: heartbeat %d", ctx.Now(), a.beats)
	if a.spec.Count == 0 || a.beats < a.spec.Count {
		ctx.ScheduleTask(a.spec.Interval, a.task)
	}
}

func (a *heartbeatApp) Stop(*Host) {
	a.done = true
}
