// Package controller drives a simulation: it builds the network and the
// hosts, then repeatedly computes the next round's window, runs every host
// through it on the scheduler and stops when no window remains.
package controller

import (
	"time"

	"github.com/roundsim/roundsim/sim"
	"github.com/roundsim/roundsim/sim/runahead"
)

// Controller decides the bounds of each round.
type Controller struct {
	runahead *runahead.Runahead
	endTime  sim.EmulatedTime
}

// NewController creates a Controller that stops at endTime.
func NewController(ra *runahead.Runahead, endTime sim.EmulatedTime) *Controller {
	return &Controller{runahead: ra, endTime: endTime}
}

// EndTime returns the simulated instant at which the run stops.
func (c *Controller) EndTime() sim.EmulatedTime {
	return c.endTime
}

// Runahead returns the current maximum round width.
func (c *Controller) Runahead() time.Duration {
	return c.runahead.Get()
}

// ManagerFinishedCurrentRound is called between rounds with the earliest
// pending event across all hosts. It returns the next window [start, end),
// or ok == false when the simulation is over.
func (c *Controller) ManagerFinishedCurrentRound(minNextEventTime sim.EmulatedTime) (start, end sim.EmulatedTime, ok bool) {
	start = minNextEventTime
	end = sim.MinTime(start.Add(c.runahead.Get()), c.endTime)
	if start >= end {
		return 0, 0, false
	}
	return start, end, true
}

// UpdateMinRunahead reports the latency of a packet that was just sent.
func (c *Controller) UpdateMinRunahead(latency time.Duration) {
	c.runahead.UpdateLowestUsedLatency(latency)
}
