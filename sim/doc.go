// Package sim holds the types shared by every part of the round-based
// network simulator: simulated time, host identifiers, per-host random
// streams and the end-of-run metrics.
//
// # Reading Guide
//
// Start with these packages to understand the simulation kernel:
//   - controller/: the round loop. Each round executes every host up to a
//     common end time, then the next window is chosen from the earliest
//     pending event and the runahead.
//   - host/: a host's event queue, sockets and applications.
//   - scheduler/: how hosts are spread over worker threads within a round.
//
// # Architecture
//
// Sub-packages, bottom-up:
//   - sim/rooted/: Root ownership tokens and the Rc, RefCell and Cell
//     wrappers that may only be touched while a host's root is held
//   - sim/latch/: reusable generation latch used to start and finish rounds
//   - sim/pool/: worker pools pinned to logical processors
//   - sim/event/: events, their total order and the per-host queue
//   - sim/network/: the latency graph, shortest paths and packet routing
//   - sim/runahead/: the round width, optionally shrunk to the lowest
//     latency actually used
//   - sim/scheduler/: thread-per-host and thread-per-core schedulers
//   - sim/config/: YAML configuration
//   - sim/trace/: optional per-round trace and its summary
//
// A packet sent during a round is never delivered before the round ends, so
// hosts within a round are independent and results do not depend on the
// scheduler or the number of threads.
package sim
