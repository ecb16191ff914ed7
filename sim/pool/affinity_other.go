//go:build !linux

package pool

import "runtime"

// pinToCPU is a no-op where thread affinity is not supported.
func pinToCPU(cpu int) error {
	return nil
}

// LogicalProcessors returns 0..runtime.NumCPU()-1.
func LogicalProcessors() ([]int, error) {
	n := runtime.NumCPU()
	if n == 0 {
		return nil, ErrNoProcessors
	}
	cpus := make([]int, n)
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}
