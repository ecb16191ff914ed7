// Package rooted provides shared-ownership and interior-mutability containers
// whose bookkeeping is gated by holding the lock of a Root.
//
// A Root is a lock domain, normally one per simulated host. Every rooted object
// records the Tag of the Root it was created under. Operations that mutate
// shared bookkeeping (reference counts, cell contents, borrow flags) take the
// *Guard returned by Root.Lock as proof that the caller holds that domain's
// lock, and panic if the guard belongs to a different Root or was already
// unlocked. Because the mutation only ever happens under the domain lock, the
// counters are plain ints rather than atomics.
//
// The guard is a capability token checked at run time. Go cannot tie its
// lifetime to a scope, so a guard must not be retained past Unlock or handed
// to another goroutine.
package rooted

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var nextTag atomic.Uint64

// Tag identifies a Root. Tags are never reused within a process.
type Tag struct {
	id uint64
}

func (t Tag) String() string {
	return fmt.Sprintf("tag#%d", t.id)
}

// Root is a lock domain. The zero value is not usable; call NewRoot.
type Root struct {
	tag Tag
	mu  sync.Mutex
}

// NewRoot creates a Root with a fresh Tag.
func NewRoot() *Root {
	return &Root{tag: Tag{id: nextTag.Add(1)}}
}

// Tag returns the identity copied into every object created under r.
func (r *Root) Tag() Tag {
	return r.tag
}

// Lock acquires the domain lock and returns the proof of possession.
// Single-owner-at-a-time use is structural in the scheduler, so contention
// here means two workers touched the same host, which is a bug elsewhere.
func (r *Root) Lock() *Guard {
	r.mu.Lock()
	return &Guard{root: r}
}

// TryLock is Lock without blocking.
func (r *Root) TryLock() (*Guard, bool) {
	if !r.mu.TryLock() {
		return nil, false
	}
	return &Guard{root: r}, true
}

// Guard proves that the goroutine holding it owns its Root's lock.
type Guard struct {
	root     *Root
	released bool
}

// Tag returns the tag of the locked Root.
func (g *Guard) Tag() Tag {
	return g.root.tag
}

// Unlock releases the Root. Any later use of g panics.
func (g *Guard) Unlock() {
	if g.released {
		panic("rooted.Guard.Unlock: guard already released")
	}
	g.released = true
	g.root.mu.Unlock()
}

// verify panics unless g is a live guard for tag.
func (g *Guard) verify(tag Tag, op string) {
	if g == nil {
		panic(fmt.Sprintf("%s: nil guard", op))
	}
	if g.released {
		panic(fmt.Sprintf("%s: guard for %v used after Unlock", op, g.root.tag))
	}
	if g.root.tag != tag {
		panic(fmt.Sprintf("%s: guard for %v does not match object %v", op, g.root.tag, tag))
	}
}
