// File: pool/iovec.go
// Package pool provides scatter-gather views over ring storage.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// An Iovec describes any contiguous or wrapped region of a power-of-two
// ring in at most two segments, so framing layers can hand bytes to a
// transport without copying. CopyOut/CopyIn are the escape hatches for
// consumers that need contiguous memory.

package pool

import "github.com/momentics/hioload-modbus/api"

// Iovec is a view of up to two contiguous byte segments.
type Iovec struct {
	seg [2][]byte
	n   int
}

// FromRing builds a view over ring storage. base must have power-of-two
// length; start is the monotonic consumer cursor, length the view size.
func FromRing(base []byte, start uint64, length int) (Iovec, error) {
	capacity := uint64(len(base))
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return Iovec{}, api.ErrInvalidArgument
	}
	if length < 0 || uint64(length) > capacity {
		return Iovec{}, api.ErrInvalidArgument
	}
	var v Iovec
	if length == 0 {
		return v, nil
	}
	idx := start & (capacity - 1)
	first := capacity - idx
	if uint64(length) <= first {
		v.seg[0] = base[idx : idx+uint64(length)]
		v.n = 1
		return v, nil
	}
	v.seg[0] = base[idx:]
	v.seg[1] = base[:uint64(length)-first]
	v.n = 2
	return v, nil
}

// FromSlice wraps a contiguous buffer as a single-segment view.
func FromSlice(p []byte) Iovec {
	if len(p) == 0 {
		return Iovec{}
	}
	return Iovec{seg: [2][]byte{p, nil}, n: 1}
}

// Segments returns the populated segments in wire order.
func (v Iovec) Segments() [][]byte { return v.seg[:v.n] }

// Len returns the total view length.
func (v Iovec) Len() int {
	total := 0
	for i := 0; i < v.n; i++ {
		total += len(v.seg[i])
	}
	return total
}

// CopyOut copies the view into dst and returns the bytes copied.
func (v Iovec) CopyOut(dst []byte) int {
	total := 0
	for i := 0; i < v.n && total < len(dst); i++ {
		total += copy(dst[total:], v.seg[i])
	}
	return total
}

// CopyIn copies src into the view's segments and returns the bytes copied.
func (v Iovec) CopyIn(src []byte) int {
	total := 0
	for i := 0; i < v.n && total < len(src); i++ {
		total += copy(v.seg[i], src[total:])
	}
	return total
}
