package rooted

import (
	"fmt"
	"runtime"
)

// Dropper is implemented by values that release resources when the last Rc
// pointing at them is dropped.
type Dropper interface {
	Drop()
}

type rcBox[T any] struct {
	val    T
	strong int
}

// Rc is a reference-counted handle whose count may only change while the
// owning Root is locked. Reading the value never needs the guard.
//
// Every handle must be released with SafelyDrop or IntoInner. A handle that is
// garbage collected without being released is reported as a leak: the value's
// Drop hook never runs, and in builds with the rooted_debug tag the process
// panics. The box is never released twice.
type Rc[T any] struct {
	tag Tag
	box *rcBox[T]
}

// NewRc wraps val with a strong count of one.
func NewRc[T any](root *Root, val T) *Rc[T] {
	rc := &Rc[T]{tag: root.Tag(), box: &rcBox[T]{val: val, strong: 1}}
	runtime.SetFinalizer(rc, finalizeRc[T])
	return rc
}

func finalizeRc[T any](rc *Rc[T]) {
	if rc.box != nil {
		reportLeak(fmt.Sprintf("Rc[%T]", rc.box.val), rc.tag)
	}
}

// Tag returns the tag of the Root the handle was created under.
func (rc *Rc[T]) Tag() Tag {
	return rc.tag
}

// Get returns the shared value.
func (rc *Rc[T]) Get() T {
	return rc.live("Rc.Get").val
}

// Clone returns a new handle to the same value and bumps the count.
func (rc *Rc[T]) Clone(g *Guard) *Rc[T] {
	g.verify(rc.tag, "Rc.Clone")
	box := rc.live("Rc.Clone")
	box.strong++
	clone := &Rc[T]{tag: rc.tag, box: box}
	runtime.SetFinalizer(clone, finalizeRc[T])
	return clone
}

// StrongCount returns the number of live handles sharing the value.
func (rc *Rc[T]) StrongCount(g *Guard) int {
	g.verify(rc.tag, "Rc.StrongCount")
	return rc.live("Rc.StrongCount").strong
}

// PtrEq reports whether rc and other share the same value.
func (rc *Rc[T]) PtrEq(other *Rc[T]) bool {
	return rc.live("Rc.PtrEq") == other.live("Rc.PtrEq")
}

// SafelyDrop releases this handle. When it was the last one, the value's
// Drop hook runs. The handle must not be used afterwards.
func (rc *Rc[T]) SafelyDrop(g *Guard) {
	if val, last := rc.release(g, "Rc.SafelyDrop"); last {
		if d, ok := any(val).(Dropper); ok {
			d.Drop()
		}
	}
}

// IntoInner releases this handle and, if it was the last one, hands the value
// back to the caller instead of running its Drop hook.
func (rc *Rc[T]) IntoInner(g *Guard) (T, bool) {
	return rc.release(g, "Rc.IntoInner")
}

func (rc *Rc[T]) release(g *Guard, op string) (T, bool) {
	g.verify(rc.tag, op)
	box := rc.live(op)
	rc.box = nil
	runtime.SetFinalizer(rc, nil)

	box.strong--
	if box.strong > 0 {
		var zero T
		return zero, false
	}
	val := box.val
	var zero T
	box.val = zero
	return val, true
}

func (rc *Rc[T]) live(op string) *rcBox[T] {
	if rc.box == nil {
		panic(fmt.Sprintf("%s: handle used after release (%v)", op, rc.tag))
	}
	return rc.box
}
