package trace

// TraceLevel controls the verbosity of round tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelRounds captures one record per round.
	TraceLevelRounds TraceLevel = "rounds"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelRounds: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel `yaml:"level"`
}

// SimulationTrace collects round records during a simulation.
type SimulationTrace struct {
	Config TraceConfig   `yaml:"config"`
	RunID  string        `yaml:"run_id"`
	Rounds []RoundRecord `yaml:"rounds"`
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig, runID string) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		RunID:  runID,
		Rounds: make([]RoundRecord, 0),
	}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelRounds
}

// RecordRound appends a round record. It is a no-op unless Enabled.
func (st *SimulationTrace) RecordRound(record RoundRecord) {
	if !st.Enabled() {
		return
	}
	st.Rounds = append(st.Rounds, record)
}
