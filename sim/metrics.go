// Tracks run-wide and per-host results reported at the end of a simulation.

package sim

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// HostStats counts what one host did over the whole run.
type HostStats struct {
	EventsExecuted     uint64 `json:"events_executed"`
	LocalEvents        uint64 `json:"local_events"`
	PacketsSent        uint64 `json:"packets_sent"`
	PacketsDropped     uint64 `json:"packets_dropped"`
	PacketsReceived    uint64 `json:"packets_received"`
	PacketsUnreachable uint64 `json:"packets_unreachable"`
	SocketsClosed      uint64 `json:"sockets_closed"`

	Echoes     uint64        `json:"echoes"`
	Pings      uint64        `json:"pings"`
	Pongs      uint64        `json:"pongs"`
	RTTTotal   time.Duration `json:"rtt_total_ns"`
	Heartbeats uint64        `json:"heartbeats"`

	// Digest is a hash of every executed event in execution order. Two runs
	// of one configuration produce the same digest.
	Digest uint64 `json:"digest"`
}

// HostMetrics is the final report of one host.
type HostMetrics struct {
	ID   HostID `json:"id"`
	Name string `json:"name"`
	HostStats
}

// Metrics aggregates the results of a run. Everything except RunID,
// Scheduler, Parallelism and WallTime is deterministic.
type Metrics struct {
	RunID       string
	Scheduler   string
	Parallelism int

	Rounds         int
	EventsExecuted uint64
	// SimulatedEnd is the end of the last round executed.
	SimulatedEnd EmulatedTime
	WallTime     time.Duration

	Hosts []HostMetrics // ordered by ID
}

// NewMetrics returns an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{Hosts: make([]HostMetrics, 0)}
}

// Digest combines every host's event digest in host order.
func (m *Metrics) Digest() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, hm := range m.Hosts {
		binary.LittleEndian.PutUint64(buf[:], hm.Digest)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// MetricsOutput is the JSON form written by SaveResults.
type MetricsOutput struct {
	RunID            string        `json:"run_id"`
	Scheduler        string        `json:"scheduler"`
	Parallelism      int           `json:"parallelism"`
	Rounds           int           `json:"rounds"`
	EventsExecuted   uint64        `json:"events_executed"`
	SimulatedSeconds float64       `json:"simulated_seconds"`
	WallSeconds      float64       `json:"wall_seconds"`
	EventsPerSec     float64       `json:"events_per_sec"`
	Digest           string        `json:"digest"`
	Hosts            []HostMetrics `json:"hosts"`
}

// Output converts m to its JSON form.
func (m *Metrics) Output() MetricsOutput {
	out := MetricsOutput{
		RunID:            m.RunID,
		Scheduler:        m.Scheduler,
		Parallelism:      m.Parallelism,
		Rounds:           m.Rounds,
		EventsExecuted:   m.EventsExecuted,
		SimulatedSeconds: time.Duration(m.SimulatedEnd).Seconds(),
		WallSeconds:      m.WallTime.Seconds(),
		Digest:           fmt.Sprintf("%016x", m.Digest()),
		Hosts:            m.Hosts,
	}
	if m.WallTime > 0 {
		out.EventsPerSec = float64(m.EventsExecuted) / m.WallTime.Seconds()
	}
	return out
}

// SaveResults prints the metrics as JSON to stdout and, if outputPath is not
// empty, also writes them to that file.
func (m *Metrics) SaveResults(outputPath string) error {
	data, err := json.MarshalIndent(m.Output(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	fmt.Println("=== Simulation Metrics ===")
	fmt.Println(string(data))

	if outputPath == "" {
		return nil
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write metrics to %s: %w", outputPath, err)
	}
	logrus.Infof("metrics written to %s", outputPath)
	return nil
}
