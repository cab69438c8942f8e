// File: diag/trace.go
// Package diag implements allocation-free hex tracing.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package diag

import "github.com/momentics/hioload-modbus/api"

const hexDigits = "0123456789abcdef"

// HexTracer formats each traced ADU into an inline buffer and hands the
// line to the sink. The line is reused across calls.
type HexTracer struct {
	fn  api.TraceFunc
	buf [8 + 2*(2+api.MaxPDU)]byte
}

// NewHexTracer wraps a sink; nil disables tracing.
func NewHexTracer(fn api.TraceFunc) *HexTracer {
	return &HexTracer{fn: fn}
}

// Enabled reports whether a sink is installed.
func (t *HexTracer) Enabled() bool { return t != nil && t.fn != nil }

// Trace emits one direction-tagged hex line: "unit fc payload...".
func (t *HexTracer) Trace(dir api.TraceDirection, adu api.ADU) {
	if !t.Enabled() {
		return
	}
	n := 0
	put := func(b byte) {
		t.buf[n] = hexDigits[b>>4]
		t.buf[n+1] = hexDigits[b&0x0F]
		n += 2
	}
	put(adu.Unit)
	t.buf[n] = ' '
	n++
	put(adu.Function)
	t.buf[n] = ' '
	n++
	for _, b := range adu.Payload {
		if n+2 > len(t.buf) {
			break
		}
		put(b)
	}
	t.fn(dir, t.buf[:n])
}
