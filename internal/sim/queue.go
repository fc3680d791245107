package sim

import (
	"runtime"
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const CacheLineSize = 64

// Padding ensures variables don't share cache lines (prevents false sharing)
type Padding [CacheLineSize]byte

type cell[T any] struct {
	seq  atomic.Uint64
	item T
}

// Queue is a bounded lock-free MPSC ring buffer (Vyukov). Script goroutines
// push, the tick goroutine pops.
//
// Each cell carries a sequence number so the consumer never reads a slot a
// producer has claimed but not finished writing.
//
// Memory Layout (prevents false sharing):
// [Padding][head][Padding][tail][Padding][cells...]
type Queue[T any] struct {
	_pad0 Padding

	head  atomic.Uint64 // Next position to claim (producers)
	_pad1 Padding

	tail  atomic.Uint64 // Next position to read (consumer)
	_pad2 Padding

	mask  uint64
	cells []cell[T]
}

// NewQueue creates a queue; capacity is rounded up to a power of 2.
func NewQueue[T any](capacity int) *Queue[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}

	q := &Queue[T]{
		mask:  uint64(n - 1),
		cells: make([]cell[T], n),
	}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds item, returning false if the queue is full.
// Safe for multiple concurrent producers.
func (q *Queue[T]) TryPush(item T) bool {
	for {
		pos := q.head.Load()
		c := &q.cells[pos&q.mask]
		seq := c.seq.Load()

		switch {
		case seq == pos:
			if q.head.CompareAndSwap(pos, pos+1) {
				c.item = item
				c.seq.Store(pos + 1) // publish
				return true
			}
		case seq < pos:
			return false // Queue full
		}

		// Another producer won, retry
		runtime.Gosched()
	}
}

// TryPop removes the oldest item. Single consumer only.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T

	pos := q.tail.Load()
	c := &q.cells[pos&q.mask]
	if c.seq.Load() != pos+1 {
		return zero, false // Empty or not yet published
	}

	item := c.item
	c.item = zero
	c.seq.Store(pos + q.mask + 1) // free for the next lap
	q.tail.Store(pos + 1)
	return item, true
}

// DrainTo pops into buf until it is full or the queue is empty (zero-alloc batch).
// Returns the number of items written.
func (q *Queue[T]) DrainTo(buf []T) int {
	count := 0
	for count < len(buf) {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		buf[count] = item
		count++
	}
	return count
}

// Len returns the approximate number of items in the queue
func (q *Queue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the queue capacity
func (q *Queue[T]) Cap() int {
	return int(q.mask + 1)
}
