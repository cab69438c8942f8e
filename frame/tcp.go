// File: frame/tcp.go
// Package frame implements the MBAP framing state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MBAP header: transaction id, protocol id (always zero), length counting
// unit id + PDU, unit id. The decoder waits for the 7-byte header, then
// for length-1 further bytes. Header violations drop the buffered bytes;
// stream recovery is the connection's problem, not the framer's.

package frame

import "github.com/momentics/hioload-modbus/api"

const (
	mbapHeaderLen = 7
	maxTCPFrame   = mbapHeaderLen + api.MaxPDU
)

// TCPStats counts decoder outcomes.
type TCPStats struct {
	FramesOK     uint64
	HeaderErrors uint64
}

// TCP is the MBAP framer.
type TCP struct {
	buf   [maxTCPFrame]byte
	n     int
	out   [maxTCPFrame]byte
	stats TCPStats
}

// NewTCP builds a TCP framer.
func NewTCP() *TCP { return &TCP{} }

// Encode writes tid | 0x0000 | length | unit | function | payload.
func (f *TCP) Encode(dst []byte, tid uint16, adu api.ADU) (int, error) {
	plen := len(adu.Payload)
	if plen > api.MaxPayload {
		return 0, api.ErrInvalidArgument
	}
	total := mbapHeaderLen + 1 + plen
	if len(dst) < total {
		return 0, api.ErrInvalidArgument
	}
	length := uint16(2 + plen) // unit + function + payload
	dst[0] = byte(tid >> 8)
	dst[1] = byte(tid)
	dst[2] = 0
	dst[3] = 0
	dst[4] = byte(length >> 8)
	dst[5] = byte(length)
	dst[6] = adu.Unit
	dst[7] = adu.Function
	copy(dst[8:], adu.Payload)
	return total, nil
}

// Feed accumulates stream bytes.
func (f *TCP) Feed(p []byte, _ int64) {
	for len(p) > 0 {
		n := copy(f.buf[f.n:], p)
		f.n += n
		p = p[n:]
		if f.n == len(f.buf) && !f.headerValid() {
			// Full buffer with a bad header cannot progress.
			f.n = 0
			f.stats.HeaderErrors++
		}
	}
}

func (f *TCP) headerValid() bool {
	if f.n < mbapHeaderLen {
		return true
	}
	proto := uint16(f.buf[2])<<8 | uint16(f.buf[3])
	length := int(f.buf[4])<<8 | int(f.buf[5])
	return proto == 0 && length >= 2 && length <= 1+api.MaxPDU
}

// Next returns the next complete MBAP frame.
func (f *TCP) Next(_ int64) (Inbound, bool) {
	if f.n < mbapHeaderLen {
		return Inbound{}, false
	}
	if !f.headerValid() {
		f.n = 0
		f.stats.HeaderErrors++
		return Inbound{}, false
	}
	length := int(f.buf[4])<<8 | int(f.buf[5])
	total := mbapHeaderLen - 1 + length
	if f.n < total {
		return Inbound{}, false
	}
	tid := uint16(f.buf[0])<<8 | uint16(f.buf[1])
	copy(f.out[:], f.buf[:total])
	copy(f.buf[:], f.buf[total:f.n])
	f.n -= total
	f.stats.FramesOK++
	return Inbound{
		ADU: api.ADU{
			Unit:     f.out[6],
			Function: f.out[7],
			Payload:  f.out[8:total],
		},
		TID: tid,
	}, true
}

// Reset drops partial state.
func (f *TCP) Reset() { f.n = 0 }

// Stats returns a copy of the decoder counters.
func (f *TCP) Stats() TCPStats { return f.stats }
