package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce identical results, whatever the scheduler or parallelism.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystems ===

// SubsystemHost returns the subsystem name for host id.
func SubsystemHost(id HostID) string {
	return fmt.Sprintf("host_%d", uint32(id))
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName).
//
// Each host draws only from its own stream, and a host is executed by a single
// worker at a time, so the streams themselves need no locking. The subsystem
// map is guarded because hosts may be constructed from several goroutines.
type PartitionedRNG struct {
	key SimulationKey

	mu         sync.Mutex
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// ForHost returns the RNG stream owned by host id.
func (p *PartitionedRNG) ForHost(id HostID) *rand.Rand {
	return p.ForSubsystem(SubsystemHost(id))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
