// File: frame/ascii.go
// Package frame implements the ASCII framing state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames are ':' + hex(unit) + hex(function) + hex(payload) + hex(LRC) +
// CR LF. A colon restarts assembly at any point; silence beyond the
// inter-character timeout drops the partial line.

package frame

import "github.com/momentics/hioload-modbus/api"

// MaxASCIILine bounds the line buffer: unit, PDU (function code included)
// and LRC hex-expanded, plus the colon and the CR LF terminator, with
// three bytes of slack.
const MaxASCIILine = (api.MaxPDU + 3) * 2 + 4

// ASCIIStats counts decoder outcomes.
type ASCIIStats struct {
	FramesOK  uint64
	LRCErrors uint64
	Malformed uint64
	Timeouts  uint64
}

// ASCII is the serial hex framer.
type ASCII struct {
	timeoutMS int64

	line       [MaxASCIILine]byte
	n          int
	inFrame    bool
	sawCR      bool
	complete   bool
	lastCharMS int64

	bin   [maxRTUFrame]byte
	stats ASCIIStats
}

// NewASCII builds an ASCII framer.
func NewASCII(cfg api.ASCIIConfig) *ASCII {
	t := cfg.InterCharTimeoutMS
	if t <= 0 {
		t = 1000
	}
	return &ASCII{timeoutMS: t}
}

const hexDigits = "0123456789ABCDEF"

// Encode writes the hex framing of adu into dst.
func (f *ASCII) Encode(dst []byte, _ uint16, adu api.ADU) (int, error) {
	if len(adu.Payload) > api.MaxPayload {
		return 0, api.ErrInvalidArgument
	}
	need := 1 + 2*(2+len(adu.Payload)) + 2 + 2
	if len(dst) < need {
		return 0, api.ErrInvalidArgument
	}
	n := 0
	dst[n] = ':'
	n++
	var sum uint8
	put := func(b byte) {
		sum += b
		dst[n] = hexDigits[b>>4]
		dst[n+1] = hexDigits[b&0x0F]
		n += 2
	}
	put(adu.Unit)
	put(adu.Function)
	for _, b := range adu.Payload {
		put(b)
	}
	lrc := -sum
	dst[n] = hexDigits[lrc>>4]
	dst[n+1] = hexDigits[lrc&0x0F]
	n += 2
	dst[n] = '\r'
	dst[n+1] = '\n'
	return n + 2, nil
}

// Feed accumulates characters until the CR LF terminator.
func (f *ASCII) Feed(p []byte, nowMS int64) {
	if f.inFrame && nowMS-f.lastCharMS > f.timeoutMS {
		f.drop()
		f.stats.Timeouts++
	}
	for _, c := range p {
		f.lastCharMS = nowMS
		switch {
		case c == ':':
			// A new start sentinel always restarts assembly.
			f.inFrame = true
			f.sawCR = false
			f.complete = false
			f.n = 0
		case !f.inFrame || f.complete:
			// Inter-frame noise.
		case c == '\r':
			f.sawCR = true
		case c == '\n':
			if f.sawCR {
				f.complete = true
			} else {
				f.drop()
				f.stats.Malformed++
			}
		default:
			if f.sawCR || f.n == len(f.line) {
				f.drop()
				f.stats.Malformed++
				continue
			}
			f.line[f.n] = c
			f.n++
		}
	}
}

// Next decodes a completed line into a binary ADU.
func (f *ASCII) Next(nowMS int64) (Inbound, bool) {
	if f.inFrame && !f.complete && nowMS-f.lastCharMS > f.timeoutMS {
		f.drop()
		f.stats.Timeouts++
	}
	if !f.complete {
		return Inbound{}, false
	}
	n := f.n
	f.drop()
	if n < 6 || n%2 != 0 {
		f.stats.Malformed++
		return Inbound{}, false
	}
	bn := n / 2
	for i := 0; i < bn; i++ {
		hi, ok1 := hexVal(f.line[2*i])
		lo, ok2 := hexVal(f.line[2*i+1])
		if !ok1 || !ok2 {
			f.stats.Malformed++
			return Inbound{}, false
		}
		f.bin[i] = hi<<4 | lo
	}
	if LRC(f.bin[:bn-1]) != f.bin[bn-1] {
		f.stats.LRCErrors++
		return Inbound{}, false
	}
	f.stats.FramesOK++
	return Inbound{ADU: api.ADU{
		Unit:     f.bin[0],
		Function: f.bin[1],
		Payload:  f.bin[2 : bn-1],
	}}, true
}

// Reset drops partial state.
func (f *ASCII) Reset() { f.drop() }

// Stats returns a copy of the decoder counters.
func (f *ASCII) Stats() ASCIIStats { return f.stats }

func (f *ASCII) drop() {
	f.inFrame = false
	f.sawCR = false
	f.complete = false
	f.n = 0
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
