// File: frame/rtu.go
// Package frame implements the RTU framing state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Silent-gap framing: an inter-character gap above T1.5 invalidates the
// frame under assembly, a gap of T3.5 or more marks a frame boundary.
// At and below 19200 baud the character time is 11 bits / baud; above
// that the thresholds are fixed at 750 and 1750 microseconds. When the
// transport clock cannot resolve microseconds, both thresholds clamp to
// whole milliseconds, at least one tick, for hosts without a fine clock.

package frame

import (
	"github.com/momentics/hioload-modbus/api"
	"github.com/momentics/hioload-modbus/pdu"
)

// RTUStats counts decoder outcomes.
type RTUStats struct {
	FramesOK        uint64
	CRCErrors       uint64
	FramesRecovered uint64
	FramesDropped   uint64
	GapAborts       uint64
	DuplicatesFound uint64
}

const maxRTUFrame = 1 + api.MaxPDU + 2 // unit + PDU + CRC

// RTU is the serial binary framer.
type RTU struct {
	mode Mode
	cfg  api.RTUConfig

	t15us int64
	t35us int64
	micro func() int64 // nil when only the millisecond clock exists

	buf        [maxRTUFrame]byte
	n          int
	lastByteUS int64 // microsecond domain when micro != nil
	lastByteMS int64

	out [maxRTUFrame]byte

	dedup dedupWindow
	stats RTUStats
}

// NewRTU builds an RTU framer. micro is an optional microsecond clock;
// pass nil on platforms limited to milliseconds.
func NewRTU(mode Mode, cfg api.RTUConfig, micro func() int64) *RTU {
	f := &RTU{mode: mode, cfg: cfg, micro: micro}
	baud := cfg.Baud
	if baud == 0 {
		baud = 19200
	}
	if baud <= 19200 {
		charUS := int64(11_000_000) / int64(baud)
		f.t15us = charUS * 3 / 2
		f.t35us = charUS * 7 / 2
	} else {
		f.t15us = 750
		f.t35us = 1750
	}
	if cfg.T15Mul > 0 {
		f.t15us = int64(float64(f.t15us) * cfg.T15Mul)
	}
	if cfg.T35Mul > 0 {
		f.t35us = int64(float64(f.t35us) * cfg.T35Mul)
	}
	f.dedup.init(cfg.DedupDepth, cfg.DedupWindowMS)
	return f
}

// T35Millis returns the frame-boundary gap rounded up to milliseconds,
// the unit used when no microsecond clock is available.
func (f *RTU) T35Millis() int64 {
	ms := (f.t35us + 999) / 1000
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (f *RTU) t15Millis() int64 {
	ms := (f.t15us + 999) / 1000
	if ms < 1 {
		ms = 1
	}
	return ms
}

// Encode writes unit | function | payload | crc_lo | crc_hi.
func (f *RTU) Encode(dst []byte, _ uint16, adu api.ADU) (int, error) {
	n := 2 + len(adu.Payload)
	if len(adu.Payload) > api.MaxPayload || len(dst) < n+2 {
		return 0, api.ErrInvalidArgument
	}
	dst[0] = adu.Unit
	dst[1] = adu.Function
	copy(dst[2:], adu.Payload)
	crc := CRC16(dst[:n])
	dst[n] = byte(crc)
	dst[n+1] = byte(crc >> 8)
	return n + 2, nil
}

// Feed accumulates inbound bytes, aborting the frame under assembly when
// the inter-character gap exceeds T1.5.
func (f *RTU) Feed(p []byte, nowMS int64) {
	if len(p) == 0 {
		return
	}
	if f.n > 0 && f.gapExceeded(nowMS, f.t15us, f.t15Millis()) {
		// Mid-frame silence: the frame under assembly is invalid.
		f.n = 0
		f.stats.GapAborts++
	}
	for _, b := range p {
		if f.n == len(f.buf) {
			// Oversized garbage; restart from the next byte.
			f.n = 0
			f.stats.FramesDropped++
		}
		f.buf[f.n] = b
		f.n++
	}
	f.touch(nowMS)
}

func (f *RTU) touch(nowMS int64) {
	f.lastByteMS = nowMS
	if f.micro != nil {
		f.lastByteUS = f.micro()
	}
}

func (f *RTU) gapExceeded(nowMS int64, us int64, ms int64) bool {
	if f.micro != nil {
		return f.micro()-f.lastByteUS > us
	}
	return nowMS-f.lastByteMS > ms
}

// Next attempts to complete a frame: eagerly when the expected length for
// the function code is reached and the CRC validates, otherwise on the
// T3.5 boundary, with resync on checksum failure.
func (f *RTU) Next(nowMS int64) (Inbound, bool) {
	if f.n == 0 {
		return Inbound{}, false
	}
	// Fast path: well-formed frame at offset zero.
	if used, ok := f.tryParse(0); ok {
		return f.deliver(used, 0, nowMS)
	}
	boundary := f.gapExceeded(nowMS, f.t35us-1, f.T35Millis()-1) // >= T3.5
	hopeless := f.n >= 2 && !plausibleFunction(f.buf[1])
	if !boundary && !hopeless && f.n < len(f.buf) {
		return Inbound{}, false
	}
	// Resync: discard until the next plausible frame start.
	for off := 1; off+4 <= f.n; off++ {
		if used, ok := f.tryParse(off); ok {
			f.stats.CRCErrors++
			f.stats.FramesRecovered++
			return f.deliver(used, off, nowMS)
		}
	}
	if boundary {
		// Boundary passed and nothing parses: line noise.
		f.n = 0
		f.stats.CRCErrors++
		f.stats.FramesDropped++
	}
	return Inbound{}, false
}

// Reset drops partial state.
func (f *RTU) Reset() { f.n = 0 }

// NextBoundaryMS returns when the pending partial frame will cross the
// T3.5 boundary, or -1 when nothing is buffered.
func (f *RTU) NextBoundaryMS(now int64) int64 {
	if f.n == 0 {
		return -1
	}
	return f.lastByteMS + f.T35Millis()
}

// Stats returns a copy of the decoder counters.
func (f *RTU) Stats() RTUStats { return f.stats }

// deliver copies the frame out of the assembly buffer, consumes it and
// runs the duplicate filter.
func (f *RTU) deliver(used, off int, nowMS int64) (Inbound, bool) {
	f.stats.FramesOK++
	copy(f.out[:], f.buf[off:off+used])
	consumed := off + used
	copy(f.buf[:], f.buf[consumed:f.n])
	f.n -= consumed
	view := api.ADU{
		Unit:     f.out[0],
		Function: f.out[1],
		Payload:  f.out[2 : used-2],
	}
	if f.dedup.seen(view, nowMS) {
		f.stats.DuplicatesFound++
		return Inbound{}, false
	}
	return Inbound{ADU: view}, true
}

// tryParse checks whether a complete valid frame starts at off.
func (f *RTU) tryParse(off int) (int, bool) {
	avail := f.n - off
	if avail < 4 {
		return 0, false
	}
	fc := f.buf[off+1]
	explen := expectedADULen(f.mode, f.buf[off:f.n])
	if explen > 0 && avail >= explen && crcOK(f.buf[off:off+explen]) {
		return explen, true
	}
	// Unknown length (foreign function code): accept a whole-buffer CRC
	// match so unsupported-but-valid frames still reach the dispatcher.
	if explen < 0 && plausibleFunction(fc) && crcOK(f.buf[off:f.n]) {
		return avail, true
	}
	return 0, false
}

// plausibleFunction filters bytes that can never start a Modbus PDU.
func plausibleFunction(fc uint8) bool {
	base := fc &^ pdu.ExceptionBit
	return base != 0 && base <= 0x7F && (pdu.IsSupported(base) || fc&pdu.ExceptionBit != 0 || base <= 0x2B)
}

// expectedADULen returns the full frame length implied by the header
// bytes, 0 when more bytes are needed, -1 when the function code does not
// fix a length.
func expectedADULen(mode Mode, b []byte) int {
	if len(b) < 2 {
		return 0
	}
	fc := b[1]
	if fc&pdu.ExceptionBit != 0 {
		if mode == ModeClient {
			return 5 // unit + fc + code + crc
		}
		return -1
	}
	if mode == ModeServer {
		switch fc {
		case pdu.FuncReadCoils, pdu.FuncReadDiscreteInputs,
			pdu.FuncReadHolding, pdu.FuncReadInput,
			pdu.FuncWriteSingleCoil, pdu.FuncWriteSingleReg:
			return 8
		case pdu.FuncWriteMultiCoils, pdu.FuncWriteMultiRegs:
			if len(b) < 7 {
				return 0
			}
			return 9 + int(b[6])
		case pdu.FuncReadWriteRegs:
			if len(b) < 11 {
				return 0
			}
			return 13 + int(b[10])
		}
		return -1
	}
	switch fc {
	case pdu.FuncReadCoils, pdu.FuncReadDiscreteInputs,
		pdu.FuncReadHolding, pdu.FuncReadInput, pdu.FuncReadWriteRegs:
		if len(b) < 3 {
			return 0
		}
		return 5 + int(b[2])
	case pdu.FuncWriteSingleCoil, pdu.FuncWriteSingleReg,
		pdu.FuncWriteMultiCoils, pdu.FuncWriteMultiRegs:
		return 8
	}
	return -1
}
