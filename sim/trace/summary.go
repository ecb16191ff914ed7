package trace

import (
	"time"

	tdigest "github.com/caio/go-tdigest"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Rounds         int           `yaml:"rounds"`
	EventsExecuted int           `yaml:"events_executed"`
	MeanWidth      time.Duration `yaml:"mean_width"`
	MinWidth       time.Duration `yaml:"min_width"`
	MaxWidth       time.Duration `yaml:"max_width"`
	// rounds that executed no event at all
	IdleRounds int           `yaml:"idle_rounds"`
	WallP50    time.Duration `yaml:"wall_p50"`
	WallP99    time.Duration `yaml:"wall_p99"`
	WallTotal  time.Duration `yaml:"wall_total"`
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) (*TraceSummary, error) {
	summary := &TraceSummary{}
	if st == nil || len(st.Rounds) == 0 {
		return summary, nil
	}

	td, err := tdigest.New(tdigest.Compression(100))
	if err != nil {
		return nil, err
	}

	var totalWidth time.Duration
	summary.MinWidth = st.Rounds[0].Width()
	for _, r := range st.Rounds {
		w := r.Width()
		totalWidth += w
		summary.MinWidth = min(summary.MinWidth, w)
		summary.MaxWidth = max(summary.MaxWidth, w)
		summary.EventsExecuted += r.EventsExecuted
		if r.EventsExecuted == 0 {
			summary.IdleRounds++
		}
		summary.WallTotal += r.Wall
		if err := td.Add(float64(r.Wall)); err != nil {
			return nil, err
		}
	}
	summary.Rounds = len(st.Rounds)
	summary.MeanWidth = totalWidth / time.Duration(len(st.Rounds))
	summary.WallP50 = time.Duration(td.Quantile(0.50))
	summary.WallP99 = time.Duration(td.Quantile(0.99))

	return summary, nil
}
