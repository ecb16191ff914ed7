// Package config loads the YAML description of a simulation: general run
// settings, the network graph and the hosts with their applications.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roundsim/roundsim/sim/host"
	"github.com/roundsim/roundsim/sim/scheduler"
)

// DefaultSelfLoopLatency is the latency of the single switch node created
// when the network section is empty.
const DefaultSelfLoopLatency = time.Millisecond

// Config represents the full simulation file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	General General      `yaml:"general"`
	Network Network      `yaml:"network"`
	Hosts   []HostConfig `yaml:"hosts"`
}

// General holds run-wide settings.
type General struct {
	Seed     int64    `yaml:"seed"`
	StopTime Duration `yaml:"stop_time"`
	// Parallelism is the number of worker threads; zero means one per
	// logical processor.
	Parallelism int    `yaml:"parallelism"`
	Scheduler   string `yaml:"scheduler"`
	// CPUs to pin worker threads to; empty disables pinning.
	CPUs []int `yaml:"cpus"`
	// Runahead is a lower bound on the round width; zero for none.
	Runahead        Duration `yaml:"runahead"`
	DynamicRunahead bool     `yaml:"dynamic_runahead"`
}

// Network is the simulated topology.
type Network struct {
	Nodes []Node       `yaml:"nodes"`
	Edges []EdgeConfig `yaml:"edges"`
}

// Node is a vertex of the network graph.
type Node struct {
	ID uint32 `yaml:"id"`
}

// EdgeConfig is an undirected link; src == dst is a self-loop.
type EdgeConfig struct {
	Src        uint32   `yaml:"src"`
	Dst        uint32   `yaml:"dst"`
	Latency    Duration `yaml:"latency"`
	PacketLoss float64  `yaml:"packet_loss"`
}

// HostConfig describes one host, or Quantity identical hosts named Name1
// through NameN.
type HostConfig struct {
	Name     string      `yaml:"name"`
	Node     uint32      `yaml:"node"`
	Quantity int         `yaml:"quantity"`
	Apps     []AppConfig `yaml:"apps"`
}

// AppConfig describes one application. For ping, Port is the peer's port
// and LocalPort the port the probe is sent from.
type AppConfig struct {
	Kind      string   `yaml:"kind"`
	Peer      string   `yaml:"peer"`
	Port      uint16   `yaml:"port"`
	LocalPort uint16   `yaml:"local_port"`
	Interval  Duration `yaml:"interval"`
	Count     int      `yaml:"count"`
	Start     Duration `yaml:"start"`
}

// Duration is a time.Duration written as a Go duration string ("10ms") or
// as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if ns, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(ns)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Load reads, defaults and validates the file at path.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a configuration.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.General.Scheduler == "" {
		c.General.Scheduler = string(scheduler.ThreadPerCore)
	}
	if len(c.Network.Nodes) == 0 && len(c.Network.Edges) == 0 {
		c.Network.Nodes = []Node{{ID: 0}}
		c.Network.Edges = []EdgeConfig{{Src: 0, Dst: 0, Latency: Duration(DefaultSelfLoopLatency)}}
	}
	for i := range c.Hosts {
		if c.Hosts[i].Quantity == 0 {
			c.Hosts[i].Quantity = 1
		}
	}
}

// Validate checks the configuration for errors that can be found without
// building the network.
func (c *Config) Validate() error {
	g := c.General
	if g.StopTime <= 0 {
		return fmt.Errorf("general.stop_time must be positive, got %v", g.StopTime.D())
	}
	if g.Parallelism < 0 {
		return fmt.Errorf("general.parallelism must not be negative, got %d", g.Parallelism)
	}
	if _, err := scheduler.ParseKind(g.Scheduler); err != nil {
		return fmt.Errorf("general.scheduler: %w", err)
	}
	if g.Runahead < 0 {
		return fmt.Errorf("general.runahead must not be negative, got %v", g.Runahead.D())
	}
	for i, cpu := range g.CPUs {
		if cpu < 0 {
			return fmt.Errorf("general.cpus[%d] must not be negative, got %d", i, cpu)
		}
	}
	if len(c.Hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}

	nodes := make(map[uint32]bool, len(c.Network.Nodes))
	for _, n := range c.Network.Nodes {
		nodes[n.ID] = true
	}
	hosts, err := c.ExpandHosts()
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		names[h.Name] = true
	}
	for _, h := range hosts {
		if !nodes[h.Node] {
			return fmt.Errorf("host %q: unknown node %d", h.Name, h.Node)
		}
		for j, app := range h.Apps {
			if err := validateApp(app, names); err != nil {
				return fmt.Errorf("host %q app %d: %w", h.Name, j, err)
			}
		}
	}
	return nil
}

func validateApp(app AppConfig, hosts map[string]bool) error {
	switch app.Kind {
	case host.AppEcho, host.AppHeartbeat:
	case host.AppPing:
		if !hosts[app.Peer] {
			return fmt.Errorf("unknown peer %q", app.Peer)
		}
	default:
		return fmt.Errorf("unknown app kind %q", app.Kind)
	}
	if app.Interval < 0 || app.Start < 0 {
		return fmt.Errorf("interval and start must not be negative")
	}
	if app.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", app.Count)
	}
	return nil
}

// ExpandedHost is one concrete host after quantities are expanded.
type ExpandedHost struct {
	Name string
	Node uint32
	Apps []AppConfig
}

// ExpandHosts returns the concrete hosts in configuration order. A host with
// quantity N > 1 becomes Name1 through NameN. Host IDs are the indices of the
// returned slice.
func (c *Config) ExpandHosts() ([]ExpandedHost, error) {
	var out []ExpandedHost
	seen := make(map[string]bool)
	for i, hc := range c.Hosts {
		if hc.Name == "" {
			return nil, fmt.Errorf("hosts[%d]: name is required", i)
		}
		if hc.Quantity < 1 {
			return nil, fmt.Errorf("host %q: quantity must be >= 1, got %d", hc.Name, hc.Quantity)
		}
		for n := 1; n <= hc.Quantity; n++ {
			name := hc.Name
			if hc.Quantity > 1 {
				name = fmt.Sprintf("%s%d", hc.Name, n)
			}
			if seen[name] {
				return nil, fmt.Errorf("duplicate host name %q", name)
			}
			seen[name] = true
			out = append(out, ExpandedHost{Name: name, Node: hc.Node, Apps: hc.Apps})
		}
	}
	return out, nil
}
