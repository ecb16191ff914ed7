package sim

import (
	"fmt"
	"math"
	"time"
)

// EmulatedTime is an instant on the simulated clock, in nanoseconds since
// SimulationStart. It never reads the wall clock.
type EmulatedTime int64

const (
	// SimulationStart is the first instant of every simulation.
	SimulationStart EmulatedTime = 0
	// EmulatedTimeMax is used as "no pending event" by the round loop.
	EmulatedTimeMax EmulatedTime = math.MaxInt64
)

// Add returns t+d, saturating at EmulatedTimeMax.
// Panics if d is negative: simulated time never moves backwards.
func (t EmulatedTime) Add(d time.Duration) EmulatedTime {
	if d < 0 {
		panic(fmt.Sprintf("EmulatedTime.Add: negative duration %v", d))
	}
	if int64(t) > math.MaxInt64-int64(d) {
		return EmulatedTimeMax
	}
	return t + EmulatedTime(d)
}

// Sub returns the duration t-u.
func (t EmulatedTime) Sub(u EmulatedTime) time.Duration {
	return time.Duration(t - u)
}

// String renders the instant as an offset from simulation start.
func (t EmulatedTime) String() string {
	if t == EmulatedTimeMax {
		return "never"
	}
	return time.Duration(t).String()
}

// MinTime returns the earlier of a and b.
func MinTime(a, b EmulatedTime) EmulatedTime {
	if a < b {
		return a
	}
	return b
}

// HostID identifies a simulated host. IDs are assigned densely from 0 in
// configuration order, so they double as slice indices.
type HostID uint32

func (id HostID) String() string {
	return fmt.Sprintf("host_%d", uint32(id))
}
