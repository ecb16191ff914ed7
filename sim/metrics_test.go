package sim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetrics() *Metrics {
	m := NewMetrics()
	m.RunID = "run-1"
	m.Scheduler = "thread-per-core"
	m.Parallelism = 2
	m.Rounds = 4
	m.EventsExecuted = 20
	m.SimulatedEnd = EmulatedTime(2 * time.Second)
	m.WallTime = 100 * time.Millisecond
	m.Hosts = append(m.Hosts,
		HostMetrics{ID: 0, Name: "a", HostStats: HostStats{EventsExecuted: 12, Digest: 1}},
		HostMetrics{ID: 1, Name: "b", HostStats: HostStats{EventsExecuted: 8, Digest: 2}},
	)
	return m
}

func TestMetrics_Digest_DependsOnHostOrder(t *testing.T) {
	// GIVEN two reports with the same host digests in different orders
	a := sampleMetrics()
	b := sampleMetrics()
	b.Hosts[0], b.Hosts[1] = b.Hosts[1], b.Hosts[0]

	// THEN their digests differ, and a copy of a matches a
	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.Equal(t, a.Digest(), sampleMetrics().Digest())
}

func TestMetrics_Output(t *testing.T) {
	out := sampleMetrics().Output()

	assert.Equal(t, 2.0, out.SimulatedSeconds)
	assert.InDelta(t, 200.0, out.EventsPerSec, 1e-9)
	assert.Len(t, out.Digest, 16)
}

func TestMetrics_Output_ZeroWallTime(t *testing.T) {
	m := sampleMetrics()
	m.WallTime = 0
	assert.Zero(t, m.Output().EventsPerSec)
}

func TestSaveResults_WritesFile(t *testing.T) {
	// GIVEN a results path in a temp dir
	path := filepath.Join(t.TempDir(), "results.json")

	// WHEN the metrics are saved
	require.NoError(t, sampleMetrics().SaveResults(path))

	// THEN the file holds the JSON form with per-host stats flattened
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "run-1", raw["run_id"])
	hosts, ok := raw["hosts"].([]any)
	require.True(t, ok)
	require.Len(t, hosts, 2)
	first := hosts[0].(map[string]any)
	assert.Equal(t, "a", first["name"])
	assert.Equal(t, 12.0, first["events_executed"])
}

func TestSaveResults_BadPath(t *testing.T) {
	err := sampleMetrics().SaveResults(filepath.Join(t.TempDir(), "missing", "results.json"))
	assert.Error(t, err)
}
