// File: internal/concurrency/spsc.go
// Package concurrency implements the SPSC slot queue.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lamport ring with cached counterpart indices: the producer caches the
// consumer's head and vice versa, so the common case touches a single
// cache line. Release on publish, acquire on observe.

package concurrency

import (
	"code.hybscloud.com/atomix"

	"github.com/momentics/hioload-modbus/api"
)

// SPSC is a single-producer/single-consumer slot queue.
type SPSC[T any] struct {
	head       atomix.Uint64 // consumer cursor
	_          [cacheLinePad]byte
	cachedTail uint64 // consumer's view of tail
	_          [cacheLinePad]byte
	tail       atomix.Uint64 // producer cursor
	_          [cacheLinePad]byte
	cachedHead uint64 // producer's view of head
	_          [cacheLinePad]byte
	highWater  atomix.Uint64
	buffer     []T
	mask       uint64
}

// NewSPSC allocates a queue. Capacity must be a power of two.
func NewSPSC[T any](capacity int) (*SPSC[T], error) {
	n := uint64(capacity)
	if n == 0 || n&(n-1) != 0 {
		return nil, api.ErrInvalidArgument
	}
	return &SPSC[T]{buffer: make([]T, n), mask: n - 1}, nil
}

// Enqueue adds an item; false if full. Producer only.
func (q *SPSC[T]) Enqueue(item T) bool {
	tail := q.tail.LoadRelaxed()
	if tail-q.cachedHead > q.mask {
		q.cachedHead = q.head.LoadAcquire()
		if tail-q.cachedHead > q.mask {
			return false
		}
	}
	q.buffer[tail&q.mask] = item
	q.tail.StoreRelease(tail + 1)
	if occ := tail + 1 - q.cachedHead; occ > q.highWater.LoadRelaxed() {
		q.highWater.StoreRelaxed(occ)
	}
	return true
}

// Dequeue removes the oldest item; ok false if empty. Consumer only.
func (q *SPSC[T]) Dequeue() (T, bool) {
	head := q.head.LoadRelaxed()
	if head >= q.cachedTail {
		q.cachedTail = q.tail.LoadAcquire()
		if head >= q.cachedTail {
			var zero T
			return zero, false
		}
	}
	item := q.buffer[head&q.mask]
	var zero T
	q.buffer[head&q.mask] = zero
	q.head.StoreRelease(head + 1)
	return item, true
}

// Len returns current occupancy.
func (q *SPSC[T]) Len() int {
	return int(q.tail.LoadAcquire() - q.head.LoadAcquire())
}

// Cap returns the fixed capacity.
func (q *SPSC[T]) Cap() int { return len(q.buffer) }

// HighWater returns the peak occupancy observed since creation.
func (q *SPSC[T]) HighWater() int { return int(q.highWater.LoadAcquire()) }

var _ api.SlotQueue[any] = (*SPSC[any])(nil)
