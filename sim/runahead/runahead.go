// Package runahead computes how far simulated time may advance in one round.
//
// A packet sent at time t cannot arrive before t plus the smallest latency
// between any two hosts, so every host may safely run that far ahead of the
// slowest one without seeing an event from the past.
package runahead

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runahead is shared by every worker thread; reads vastly outnumber writes.
type Runahead struct {
	mu sync.RWMutex
	// lowest latency actually used by a packet; zero until the first one
	minUsed time.Duration

	minPossible time.Duration
	minConfig   time.Duration
	dynamic     bool
}

// New creates a Runahead.
//
// minPossible is the smallest latency in the network graph. minConfig is a
// user-supplied lower bound on the runahead (zero for none). When dynamic is
// set the runahead starts at minPossible and is replaced by the smallest
// latency actually used once traffic flows.
func New(dynamic bool, minPossible, minConfig time.Duration) (*Runahead, error) {
	if minPossible <= 0 {
		return nil, fmt.Errorf("minimum possible latency must be positive, got %v", minPossible)
	}
	if minConfig < 0 {
		return nil, fmt.Errorf("configured runahead must not be negative, got %v", minConfig)
	}
	return &Runahead{
		minPossible: minPossible,
		minConfig:   minConfig,
		dynamic:     dynamic,
	}, nil
}

// Get returns the current runahead. It is never zero.
func (r *Runahead) Get() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked()
}

func (r *Runahead) getLocked() time.Duration {
	runahead := r.minPossible
	if r.minUsed != 0 {
		runahead = r.minUsed
	}
	return max(runahead, r.minConfig)
}

// UpdateLowestUsedLatency records that a packet travelled with latency.
// It only has an effect when the runahead is dynamic and latency is lower
// than every latency seen so far.
//
// Panics if latency is not positive or is below the network's minimum:
// either means the router computed an impossible path.
func (r *Runahead) UpdateLowestUsedLatency(latency time.Duration) {
	if latency <= 0 {
		panic(fmt.Sprintf("Runahead.UpdateLowestUsedLatency: latency must be positive, got %v", latency))
	}
	if latency < r.minPossible {
		panic(fmt.Sprintf("Runahead.UpdateLowestUsedLatency: latency %v below network minimum %v", latency, r.minPossible))
	}
	if !r.dynamic {
		return
	}

	// cheap check under the read lock first
	r.mu.RLock()
	update := r.minUsed == 0 || latency < r.minUsed
	r.mu.RUnlock()
	if !update {
		return
	}

	r.mu.Lock()
	if r.minUsed != 0 && latency >= r.minUsed {
		r.mu.Unlock()
		return
	}
	old := r.getLocked()
	r.minUsed = latency
	updated := r.getLocked()
	r.mu.Unlock()

	if old != updated {
		logrus.Infof("runahead changed from %v to %v", old, updated)
	}
}

// IsDynamic reports whether observed latencies change the runahead.
func (r *Runahead) IsDynamic() bool {
	return r.dynamic
}
