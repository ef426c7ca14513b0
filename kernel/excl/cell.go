// Package excl provides the exclusive-access cell used for all shared kernel
// state on the single hart.
package excl

import "sync"

// BorrowError is the panic value raised when a cell is borrowed twice. On the
// real machine the second borrow would spin forever; here it is a kernel bug
// reported at the point it happens.
type BorrowError struct{}

func (BorrowError) Error() string { return "excl: cell already borrowed" }

// Cell guards a value so that at most one access path holds it at a time.
// Callers must Release before calling anything that may borrow the same cell
// again, and must never hold a borrow across a context switch.
//
// The zero value is ready to use.
type Cell[T any] struct {
	mu sync.Mutex
	v  T
}

// New returns a cell holding v.
func New[T any](v T) *Cell[T] {
	return &Cell[T]{v: v}
}

// Exclusive borrows the value. It panics with BorrowError if the cell is
// already borrowed.
func (c *Cell[T]) Exclusive() *T {
	if !c.mu.TryLock() {
		panic(BorrowError{})
	}
	return &c.v
}

// Release ends the current borrow.
func (c *Cell[T]) Release() {
	c.mu.Unlock()
}

// With runs fn while holding the borrow.
func (c *Cell[T]) With(fn func(v *T)) {
	v := c.Exclusive()
	defer c.Release()
	fn(v)
}
