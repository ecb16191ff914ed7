package trace

import (
	"testing"
	"time"
)

func TestSimulationTrace_RecordRound_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for rounds
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelRounds}, "run-1")

	// WHEN a round record is recorded
	st.RecordRound(RoundRecord{
		Index:            1,
		Start:            0,
		End:              int64(10 * time.Millisecond),
		Runahead:         10 * time.Millisecond,
		MinNextEventTime: int64(10 * time.Millisecond),
		EventsExecuted:   3,
	})

	// THEN the trace contains one round record with correct data
	if len(st.Rounds) != 1 {
		t.Fatalf("expected 1 round, got %d", len(st.Rounds))
	}
	if st.Rounds[0].Width() != 10*time.Millisecond {
		t.Errorf("expected width 10ms, got %v", st.Rounds[0].Width())
	}
	if st.RunID != "run-1" {
		t.Errorf("expected run ID run-1, got %s", st.RunID)
	}
}

func TestSimulationTrace_LevelNone_RecordsNothing(t *testing.T) {
	// GIVEN a trace with tracing disabled
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelNone}, "")

	// WHEN a round is recorded
	st.RecordRound(RoundRecord{Index: 1})

	// THEN nothing is kept
	if len(st.Rounds) != 0 {
		t.Errorf("expected no rounds, got %d", len(st.Rounds))
	}
}

func TestSimulationTrace_NilIsDisabled(t *testing.T) {
	var st *SimulationTrace
	if st.Enabled() {
		t.Error("nil trace must report disabled")
	}
	st.RecordRound(RoundRecord{Index: 1}) // must not panic
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"rounds", true},
		{"", true},
		{"decisions", false},
		{"ROUNDS", false},
	}
	for _, tc := range tests {
		if got := IsValidTraceLevel(tc.level); got != tc.valid {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tc.level, got, tc.valid)
		}
	}
}
