//go:build linux

package pool

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinToCPU restricts the calling OS thread to cpu.
func pinToCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	// pid 0 is the calling thread
	return unix.SchedSetaffinity(0, &set)
}

// LogicalProcessors returns the CPUs in the process affinity mask, in
// ascending order.
func LogicalProcessors() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("reading cpu affinity mask: %w", err)
	}
	n := set.Count()
	if n == 0 {
		return nil, ErrNoProcessors
	}
	cpus := make([]int, 0, n)
	for cpu := 0; len(cpus) < n; cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}
