// Package bridge provides the hand-off queues that connect pipeline stages.
//
// A Bridge is an unbounded FIFO guarded by one mutex and one condition
// variable. Each bridge has exactly one producer and one consumer; items move
// by pointer and the producer must not touch an item after pushing it.
//
// Shutdown is drain-and-close: after Close the consumer keeps receiving the
// items that were pushed before the close, and Pop returns ok=false once the
// queue is empty instead of blocking.
package bridge

import (
	"sync"

	"github.com/radiocollartracker/sdr-record/internal/errors"
)

// ErrClosed is returned by Push after the bridge has been closed
var ErrClosed = errors.NewStd("bridge closed")

// Bridge is a thread-safe, ownership-transferring FIFO between two stages
type Bridge[T any] struct {
	name   string
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
	pushed uint64
	popped uint64
}

// New creates an empty, open bridge. The name is used in errors and metrics.
func New[T any](name string) *Bridge[T] {
	b := &Bridge[T]{name: name}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Name returns the bridge name
func (b *Bridge[T]) Name() string {
	return b.name
}

// Push appends item at the back and wakes one waiting consumer. It never blocks
// on queue capacity.
func (b *Bridge[T]) Push(item T) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New(ErrClosed).
			Component("bridge").
			Category(errors.CategoryBridge).
			Context("bridge", b.name).
			Build()
	}
	b.items = append(b.items, item)
	b.pushed++
	b.mu.Unlock()

	b.cond.Signal()
	return nil
}

// Pop blocks until an item is available or the bridge is closed. It returns the
// oldest item and true, or the zero value and false once the bridge is closed
// and drained.
func (b *Bridge[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.lenLocked() == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.lenLocked() == 0 {
		var zero T
		return zero, false
	}
	return b.takeLocked(), true
}

// TryPop returns the oldest item without waiting
func (b *Bridge[T]) TryPop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lenLocked() == 0 {
		var zero T
		return zero, false
	}
	return b.takeLocked(), true
}

// Close marks the bridge closed and wakes every waiter. Items already queued
// remain available to Pop. Close is idempotent.
func (b *Bridge[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cond.Broadcast()
}

// Closed reports whether Close has been called
func (b *Bridge[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of queued items
func (b *Bridge[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lenLocked()
}

// Stats returns the total number of items pushed and popped so far
func (b *Bridge[T]) Stats() (pushed, popped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushed, b.popped
}

func (b *Bridge[T]) lenLocked() int {
	return len(b.items) - b.head
}

// takeLocked removes the front item. The backing slice is compacted once the
// consumed prefix dominates so a long run does not grow memory without bound.
func (b *Bridge[T]) takeLocked() T {
	var zero T
	item := b.items[b.head]
	b.items[b.head] = zero
	b.head++
	b.popped++

	switch {
	case b.head == len(b.items):
		b.items = b.items[:0]
		b.head = 0
	case b.head >= compactThreshold && b.head*2 >= len(b.items):
		n := copy(b.items, b.items[b.head:])
		clear(b.items[n:])
		b.items = b.items[:n]
		b.head = 0
	}
	return item
}

const compactThreshold = 64
