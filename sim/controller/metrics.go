package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// roundMetrics are registered on the registry passed in Options, so several
// managers can live in one process.
type roundMetrics struct {
	// rounds counts executed rounds
	rounds prometheus.Counter
	// events counts events executed across all hosts
	events prometheus.Counter
	// roundWall tracks the wall-clock duration of each round
	roundWall prometheus.Histogram
	// runahead is the width limit of the latest round
	runahead prometheus.Gauge
	// hosts is the number of simulated hosts
	hosts prometheus.Gauge
}

func newRoundMetrics(reg prometheus.Registerer) *roundMetrics {
	f := promauto.With(reg)
	return &roundMetrics{
		rounds: f.NewCounter(prometheus.CounterOpts{
			Name: "roundsim_rounds_total",
			Help: "Total rounds executed",
		}),
		events: f.NewCounter(prometheus.CounterOpts{
			Name: "roundsim_events_executed_total",
			Help: "Total events executed by all hosts",
		}),
		roundWall: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "roundsim_round_wall_seconds",
			Help:    "Wall-clock duration of a round in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		}),
		runahead: f.NewGauge(prometheus.GaugeOpts{
			Name: "roundsim_runahead_seconds",
			Help: "Runahead used for the latest round in seconds",
		}),
		hosts: f.NewGauge(prometheus.GaugeOpts{
			Name: "roundsim_hosts",
			Help: "Number of simulated hosts",
		}),
	}
}
