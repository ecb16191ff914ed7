// Package testutil provides shared test infrastructure for the simulator.
// It locates the scenario files under testdata/ and holds assertion helpers
// used across sim/ test packages.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// ScenarioPath returns the path of testdata/scenarios/<name>.yaml.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func ScenarioPath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "scenarios", name+".yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Scenario %q not found: %v", name, err)
	}
	return path
}

// WriteConfig writes a YAML document to a temporary file and returns its path.
func WriteConfig(t *testing.T, yamlText string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
