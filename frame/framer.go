// File: frame/framer.go
// Package frame implements the RTU, ASCII and TCP framing state machines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Framer turns ADUs into wire bytes and reassembles inbound byte
// streams into ADUs. Framers are single-consumer state machines driven
// from the poll thread; all scratch memory is inline.

package frame

import (
	"github.com/momentics/hioload-modbus/api"
)

// Mode tells a serial decoder whether the peer sends requests or
// responses, which fixes the expected-length tables.
type Mode uint8

const (
	// ModeClient decodes responses (the local side is the master).
	ModeClient Mode = iota
	// ModeServer decodes requests (the local side is the slave).
	ModeServer
)

// Inbound is one reassembled frame. TID is zero for serial framings.
type Inbound struct {
	ADU api.ADU
	TID uint16
}

// Framer is the framing contract shared by RTU, ASCII and TCP.
type Framer interface {
	// Encode writes the wire form of adu into dst and returns the byte
	// count. tid is used by the TCP framing and ignored by serial ones.
	Encode(dst []byte, tid uint16, adu api.ADU) (int, error)

	// Feed consumes raw transport bytes at the given clock reading.
	Feed(p []byte, nowMS int64)

	// Next returns the next completed frame, if any. The returned payload
	// view stays valid until the following Next call.
	Next(nowMS int64) (Inbound, bool)

	// Reset discards partial state after a link restart.
	Reset()
}

// NewFramer builds the framer selected by cfg for the given mode.
func NewFramer(mode Mode, cfg *api.Config, micro func() int64) (Framer, error) {
	switch cfg.Framing {
	case api.FramingRTU:
		return NewRTU(mode, cfg.RTU, micro), nil
	case api.FramingASCII:
		return NewASCII(cfg.ASCII), nil
	case api.FramingTCP:
		return NewTCP(), nil
	}
	return nil, api.ErrInvalidArgument
}
