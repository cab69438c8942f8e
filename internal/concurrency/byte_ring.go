// File: internal/concurrency/byte_ring.go
// Package concurrency implements the SPSC byte ring.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ByteRing is a wrap-around byte queue over caller-provided power-of-two
// storage. One producer advances tail, one consumer advances head; the
// cursors are monotonic so size is always tail-head. Padding separates the
// producer and consumer cache lines.

package concurrency

import (
	"code.hybscloud.com/atomix"

	"github.com/momentics/hioload-modbus/api"
)

const cacheLinePad = 64

// ByteRing is a lock-free SPSC byte queue. The zero value is unusable;
// call Init with power-of-two storage first.
type ByteRing struct {
	head atomix.Uint64 // consumer cursor
	_    [cacheLinePad]byte
	tail atomix.Uint64 // producer cursor
	_    [cacheLinePad]byte
	storage []byte
	mask    uint64
}

// Init attaches caller-owned storage. The capacity must be a power of two.
func (r *ByteRing) Init(storage []byte) error {
	n := uint64(len(storage))
	if n == 0 || n&(n-1) != 0 {
		return api.ErrInvalidArgument
	}
	r.storage = storage
	r.mask = n - 1
	r.Reset()
	return nil
}

// Write copies as many bytes of p as fit and returns the count. Producer only.
func (r *ByteRing) Write(p []byte) int {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed()
	free := uint64(len(r.storage)) - (tail - head)
	n := uint64(len(p))
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}
	idx := tail & r.mask
	first := uint64(len(r.storage)) - idx
	if first > n {
		first = n
	}
	copy(r.storage[idx:idx+first], p[:first])
	copy(r.storage[:n-first], p[first:n])
	r.tail.StoreRelease(tail + n)
	return int(n)
}

// Read copies up to len(p) bytes out and returns the count. Consumer only.
func (r *ByteRing) Read(p []byte) int {
	head := r.head.LoadRelaxed()
	tail := r.tail.LoadAcquire()
	n := tail - head
	if n > uint64(len(p)) {
		n = uint64(len(p))
	}
	if n == 0 {
		return 0
	}
	idx := head & r.mask
	first := uint64(len(r.storage)) - idx
	if first > n {
		first = n
	}
	copy(p[:first], r.storage[idx:idx+first])
	copy(p[first:n], r.storage[:n-first])
	r.head.StoreRelease(head + n)
	return int(n)
}

// Push appends one byte; false if full. Producer only.
func (r *ByteRing) Push(b byte) bool {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed()
	if tail-head == uint64(len(r.storage)) {
		return false
	}
	r.storage[tail&r.mask] = b
	r.tail.StoreRelease(tail + 1)
	return true
}

// Pop removes one byte; ok false if empty. Consumer only.
func (r *ByteRing) Pop() (byte, bool) {
	head := r.head.LoadRelaxed()
	tail := r.tail.LoadAcquire()
	if head == tail {
		return 0, false
	}
	b := r.storage[head&r.mask]
	r.head.StoreRelease(head + 1)
	return b, true
}

// Skip consumes up to n bytes without copying and returns how many were
// dropped. Consumer only.
func (r *ByteRing) Skip(n int) int {
	head := r.head.LoadRelaxed()
	tail := r.tail.LoadAcquire()
	avail := tail - head
	k := uint64(n)
	if k > avail {
		k = avail
	}
	r.head.StoreRelease(head + k)
	return int(k)
}

// Size returns the number of buffered bytes.
func (r *ByteRing) Size() int {
	return int(r.tail.LoadAcquire() - r.head.LoadAcquire())
}

// Free returns remaining capacity.
func (r *ByteRing) Free() int { return len(r.storage) - r.Size() }

// IsEmpty reports an empty ring.
func (r *ByteRing) IsEmpty() bool { return r.Size() == 0 }

// IsFull reports a full ring.
func (r *ByteRing) IsFull() bool { return r.Size() == len(r.storage) }

// Capacity returns the storage capacity.
func (r *ByteRing) Capacity() int { return len(r.storage) }

// Reset discards all buffered bytes. Not safe concurrently with Write/Read.
func (r *ByteRing) Reset() {
	r.head.StoreRelease(0)
	r.tail.StoreRelease(0)
}

// Snapshot exposes the raw storage plus the consumer cursor and size so a
// scatter-gather view can be built without copying. Consumer only; the
// view stays valid until the consumer advances.
func (r *ByteRing) Snapshot() (base []byte, head uint64, size int) {
	h := r.head.LoadRelaxed()
	t := r.tail.LoadAcquire()
	return r.storage, h, int(t - h)
}
