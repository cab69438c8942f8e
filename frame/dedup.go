// File: frame/dedup.go
// Package frame implements the RTU duplicate filter.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A small window of recently accepted frames. On links with electrical
// reflections the same frame can arrive twice back-to-back; a frame whose
// unit, function and payload hash match one accepted within the window is
// dropped before it reaches the dispatcher. Client-side retransmissions
// are not filtered here; those are matched by transaction sequence.

package frame

import "github.com/momentics/hioload-modbus/api"

type dedupEntry struct {
	valid    bool
	unit     uint8
	function uint8
	hash     uint32
	atMS     int64
}

type dedupWindow struct {
	entries  []dedupEntry
	cursor   int
	windowMS int64
}

func (w *dedupWindow) init(depth int, windowMS int64) {
	if depth <= 0 {
		return
	}
	if windowMS <= 0 {
		windowMS = 50
	}
	w.entries = make([]dedupEntry, depth)
	w.windowMS = windowMS
}

// seen records the frame and reports whether an identical one was
// accepted within the window.
func (w *dedupWindow) seen(adu api.ADU, nowMS int64) bool {
	if len(w.entries) == 0 {
		return false
	}
	h := fnv1a(adu.Payload)
	for i := range w.entries {
		e := &w.entries[i]
		if !e.valid || nowMS-e.atMS > w.windowMS {
			continue
		}
		if e.unit == adu.Unit && e.function == adu.Function && e.hash == h {
			return true
		}
	}
	w.entries[w.cursor] = dedupEntry{
		valid:    true,
		unit:     adu.Unit,
		function: adu.Function,
		hash:     h,
		atMS:     nowMS,
	}
	w.cursor = (w.cursor + 1) % len(w.entries)
	return false
}

// fnv1a is the 32-bit FNV-1a hash, inlined to stay allocation-free.
func fnv1a(p []byte) uint32 {
	h := uint32(2166136261)
	for _, b := range p {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}
