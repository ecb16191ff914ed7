package rooted

// Cell is a single value slot whose reads and writes require the owning
// Root's guard.
type Cell[T any] struct {
	tag Tag
	val T
}

// NewCell creates a Cell holding val under root.
func NewCell[T any](root *Root, val T) *Cell[T] {
	return &Cell[T]{tag: root.Tag(), val: val}
}

// Get returns a copy of the current value.
func (c *Cell[T]) Get(g *Guard) T {
	g.verify(c.tag, "Cell.Get")
	return c.val
}

// Set overwrites the value.
func (c *Cell[T]) Set(g *Guard, val T) {
	g.verify(c.tag, "Cell.Set")
	c.val = val
}

// Replace stores val and returns the previous value.
func (c *Cell[T]) Replace(g *Guard, val T) T {
	g.verify(c.tag, "Cell.Replace")
	old := c.val
	c.val = val
	return old
}

// GetMut returns a pointer to the value without a guard. The caller must be
// the only party with access to c, for example while building it.
func (c *Cell[T]) GetMut() *T {
	return &c.val
}
