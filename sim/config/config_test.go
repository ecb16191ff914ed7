package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundsim/roundsim/sim/internal/testutil"
	"github.com/roundsim/roundsim/sim/scheduler"
)

func TestLoad_Scenario(t *testing.T) {
	// GIVEN the ping scenario
	cfg, err := Load(testutil.ScenarioPath(t, "ping"))

	// THEN it parses with every section populated
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.General.Seed)
	assert.Equal(t, 2*time.Second, cfg.General.StopTime.D())
	assert.True(t, cfg.General.DynamicRunahead)
	assert.Len(t, cfg.Network.Nodes, 3)
	assert.InDelta(t, 0.1, cfg.Network.Edges[4].PacketLoss, 1e-9)

	hosts, err := cfg.ExpandHosts()
	require.NoError(t, err)
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.Name
	}
	assert.Equal(t, []string{"server", "client1", "client2", "client3", "far"}, names)
	assert.Equal(t, uint16(5000), hosts[4].Apps[0].LocalPort)
}

func TestParse_Defaults(t *testing.T) {
	// GIVEN a config with no network and no scheduler
	cfg, err := Parse(strings.NewReader(`
general:
  stop_time: 1s
hosts:
  - name: a
    apps: [{kind: heartbeat, interval: 1ms}]
`))

	// THEN a single switch node and the default scheduler are filled in
	require.NoError(t, err)
	assert.Equal(t, string(scheduler.ThreadPerCore), cfg.General.Scheduler)
	require.Len(t, cfg.Network.Nodes, 1)
	require.Len(t, cfg.Network.Edges, 1)
	assert.Equal(t, DefaultSelfLoopLatency, cfg.Network.Edges[0].Latency.D())
	assert.Equal(t, 1, cfg.Hosts[0].Quantity)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader(`
general:
  stop_time: 1s
  stoptime: 2s
hosts: [{name: a}]
`))
	assert.Error(t, err)
}

func TestDuration_Forms(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
general:
  stop_time: 1500000
  runahead: 2ms
hosts: [{name: a}]
`))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Microsecond, cfg.General.StopTime.D())
	assert.Equal(t, 2*time.Millisecond, cfg.General.Runahead.D())

	_, err = Parse(strings.NewReader("general: {stop_time: soon}\nhosts: [{name: a}]\n"))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing stop time", "hosts: [{name: a}]"},
		{"negative parallelism", "general: {stop_time: 1s, parallelism: -1}\nhosts: [{name: a}]"},
		{"unknown scheduler", "general: {stop_time: 1s, scheduler: fifo}\nhosts: [{name: a}]"},
		{"negative runahead", "general: {stop_time: 1s, runahead: -1ms}\nhosts: [{name: a}]"},
		{"negative cpu", "general: {stop_time: 1s, cpus: [-1]}\nhosts: [{name: a}]"},
		{"no hosts", "general: {stop_time: 1s}"},
		{"unnamed host", "general: {stop_time: 1s}\nhosts: [{node: 0}]"},
		{"duplicate names", "general: {stop_time: 1s}\nhosts: [{name: a}, {name: a}]"},
		{"expanded name clash", "general: {stop_time: 1s}\nhosts: [{name: a, quantity: 2}, {name: a1}]"},
		{"unknown node", "general: {stop_time: 1s}\nhosts: [{name: a, node: 3}]"},
		{"unknown app", "general: {stop_time: 1s}\nhosts: [{name: a, apps: [{kind: ftp}]}]"},
		{"unknown peer", "general: {stop_time: 1s}\nhosts: [{name: a, apps: [{kind: ping, peer: b, port: 7, interval: 1s}]}]"},
		{"negative count", "general: {stop_time: 1s}\nhosts: [{name: a, apps: [{kind: heartbeat, interval: 1s, count: -1}]}]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/roundsim.yaml")
	assert.Error(t, err)
}

func TestLoad_FromTempFile(t *testing.T) {
	path := testutil.WriteConfig(t, "general: {stop_time: 10ms}\nhosts: [{name: solo, quantity: 3}]\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	hosts, err := cfg.ExpandHosts()
	require.NoError(t, err)
	assert.Len(t, hosts, 3)
	assert.Equal(t, "solo3", hosts[2].Name)
}
