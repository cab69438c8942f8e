// File: internal/concurrency/mpsc.go
// Package concurrency implements the MPSC slot queue.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Producers serialize through a spin lock covering only the tail advance;
// the consumer stays lock-free on the head. The lock is a single atomix
// word with spin.Wait backoff, so the critical section is a handful of
// instructions even under contention.

package concurrency

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"

	"github.com/momentics/hioload-modbus/api"
)

// spinLock is a minimal test-and-set lock with adaptive backoff.
type spinLock struct {
	flag atomix.Uint64
}

func (l *spinLock) lock() {
	sw := spin.Wait{}
	for !l.flag.CompareAndSwapAcqRel(0, 1) {
		sw.Once()
	}
}

func (l *spinLock) unlock() {
	l.flag.StoreRelease(0)
}

// MPSC is a multi-producer/single-consumer slot queue.
type MPSC[T any] struct {
	head atomix.Uint64 // consumer cursor
	_    [cacheLinePad]byte
	tail atomix.Uint64 // producer cursor, guarded by lk
	lk   spinLock
	_    [cacheLinePad]byte
	highWater atomix.Uint64
	buffer    []T
	mask      uint64
}

// NewMPSC allocates a queue. Capacity must be a power of two.
func NewMPSC[T any](capacity int) (*MPSC[T], error) {
	n := uint64(capacity)
	if n == 0 || n&(n-1) != 0 {
		return nil, api.ErrInvalidArgument
	}
	return &MPSC[T]{buffer: make([]T, n), mask: n - 1}, nil
}

// Enqueue adds an item; false if full. Safe from multiple producers.
func (q *MPSC[T]) Enqueue(item T) bool {
	q.lk.lock()
	tail := q.tail.LoadRelaxed()
	head := q.head.LoadAcquire()
	if tail-head > q.mask {
		q.lk.unlock()
		return false
	}
	q.buffer[tail&q.mask] = item
	q.tail.StoreRelease(tail + 1)
	if occ := tail + 1 - head; occ > q.highWater.LoadRelaxed() {
		q.highWater.StoreRelaxed(occ)
	}
	q.lk.unlock()
	return true
}

// Dequeue removes the oldest item; ok false if empty. Single consumer only.
func (q *MPSC[T]) Dequeue() (T, bool) {
	head := q.head.LoadRelaxed()
	tail := q.tail.LoadAcquire()
	if head == tail {
		var zero T
		return zero, false
	}
	item := q.buffer[head&q.mask]
	var zero T
	q.buffer[head&q.mask] = zero
	q.head.StoreRelease(head + 1)
	return item, true
}

// Len returns current occupancy.
func (q *MPSC[T]) Len() int {
	return int(q.tail.LoadAcquire() - q.head.LoadAcquire())
}

// Cap returns the fixed capacity.
func (q *MPSC[T]) Cap() int { return len(q.buffer) }

// HighWater returns the peak occupancy observed since creation.
func (q *MPSC[T]) HighWater() int { return int(q.highWater.LoadAcquire()) }

var _ api.SlotQueue[any] = (*MPSC[any])(nil)
