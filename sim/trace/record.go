// Package trace records per-round observations of a simulation run.
// This package has no dependencies on sim/ or its sub-packages: it stores pure data types.
package trace

import "time"

// RoundRecord captures one executed round.
type RoundRecord struct {
	Index int `yaml:"index"`
	// Start and End bound the round's simulated window [Start, End), in
	// nanoseconds since simulation start.
	Start    int64         `yaml:"start_ns"`
	End      int64         `yaml:"end_ns"`
	Runahead time.Duration `yaml:"runahead"`
	// MinNextEventTime is the earliest pending event after the round, or -1
	// when nothing is pending.
	MinNextEventTime int64         `yaml:"min_next_event_ns"`
	EventsExecuted   int           `yaml:"events_executed"`
	Wall             time.Duration `yaml:"wall"`
}

// Width returns the simulated duration of the round.
func (r RoundRecord) Width() time.Duration {
	return time.Duration(r.End - r.Start)
}
