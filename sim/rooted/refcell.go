package rooted

import "fmt"

// RefCell hands out dynamically checked borrows of its value. Borrow
// bookkeeping is guarded by the owning Root, so it needs no atomics.
// Any number of shared borrows may coexist; a mutable borrow is exclusive.
type RefCell[T any] struct {
	tag     Tag
	val     T
	readers int
	writer  bool
}

// NewRefCell creates a RefCell holding val under root.
func NewRefCell[T any](root *Root, val T) *RefCell[T] {
	return &RefCell[T]{tag: root.Tag(), val: val}
}

// Borrow takes a shared borrow. Panics if a mutable borrow is live.
func (c *RefCell[T]) Borrow(g *Guard) *Ref[T] {
	g.verify(c.tag, "RefCell.Borrow")
	if c.writer {
		panic(fmt.Sprintf("RefCell.Borrow: already mutably borrowed (%v)", c.tag))
	}
	c.readers++
	return &Ref[T]{cell: c}
}

// BorrowMut takes an exclusive borrow. Panics if any borrow is live.
func (c *RefCell[T]) BorrowMut(g *Guard) *RefMut[T] {
	g.verify(c.tag, "RefCell.BorrowMut")
	if c.writer || c.readers > 0 {
		panic(fmt.Sprintf("RefCell.BorrowMut: already borrowed (%d readers, writer=%v, %v)",
			c.readers, c.writer, c.tag))
	}
	c.writer = true
	return &RefMut[T]{cell: c}
}

// GetMut returns a pointer to the value without a guard. The caller must be
// the only party with access to c.
func (c *RefCell[T]) GetMut() *T {
	return &c.val
}

// Ref is a live shared borrow.
type Ref[T any] struct {
	cell     *RefCell[T]
	released bool
}

// Get returns the borrowed value. The pointer must not be written through
// and must not be used after Release.
func (r *Ref[T]) Get() *T {
	if r.released {
		panic("Ref.Get: borrow already released")
	}
	return &r.cell.val
}

// Release ends the borrow.
func (r *Ref[T]) Release(g *Guard) {
	g.verify(r.cell.tag, "Ref.Release")
	if r.released {
		panic("Ref.Release: borrow already released")
	}
	r.released = true
	r.cell.readers--
}

// RefMut is a live exclusive borrow.
type RefMut[T any] struct {
	cell     *RefCell[T]
	released bool
}

// Get returns the borrowed value for reading and writing until Release.
func (r *RefMut[T]) Get() *T {
	if r.released {
		panic("RefMut.Get: borrow already released")
	}
	return &r.cell.val
}

// Release ends the borrow.
func (r *RefMut[T]) Release(g *Guard) {
	g.verify(r.cell.tag, "RefMut.Release")
	if r.released {
		panic("RefMut.Release: borrow already released")
	}
	r.released = true
	r.cell.writer = false
}
