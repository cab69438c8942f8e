// File: diag/events.go
// Package diag implements the event sink and capture ring.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package diag

import "github.com/momentics/hioload-modbus/api"

// Ring captures the most recent events. Single-threaded; driven from the
// poll loop only.
type Ring struct {
	events []api.Event
	cursor int
	count  int
}

// NewRing allocates a capture ring; depth <= 0 disables capture.
func NewRing(depth int) *Ring {
	if depth <= 0 {
		return &Ring{}
	}
	return &Ring{events: make([]api.Event, depth)}
}

// Capture records one event, overwriting the oldest at capacity.
func (r *Ring) Capture(ev api.Event) {
	if len(r.events) == 0 {
		return
	}
	r.events[r.cursor] = ev
	r.cursor = (r.cursor + 1) % len(r.events)
	if r.count < len(r.events) {
		r.count++
	}
}

// Snapshot copies the captured events, oldest first, and returns the count.
func (r *Ring) Snapshot(dst []api.Event) int {
	n := r.count
	if n > len(dst) {
		n = len(dst)
	}
	start := r.cursor - r.count
	if start < 0 {
		start += len(r.events)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.events[(start+i)%len(r.events)]
	}
	return n
}

// Len returns the number of captured events.
func (r *Ring) Len() int { return r.count }

// Sink fans one event out to the optional callback and the capture ring.
type Sink struct {
	Fn   api.EventFunc
	Ring *Ring
}

// Emit delivers one event.
func (s *Sink) Emit(ev api.Event) {
	if s.Ring != nil {
		s.Ring.Capture(ev)
	}
	if s.Fn != nil {
		s.Fn(ev)
	}
}
