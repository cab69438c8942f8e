// File: api/adu.go
// Package api defines the ADU view shared by codec, framing and engines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// PDU size limits. A PDU is the function code plus its payload.
const (
	MaxPDU     = 253 // function code + payload
	MaxPayload = MaxPDU - 1
)

// Broadcast is the unit id addressed to every server on the link.
const Broadcast uint8 = 0

// ADU is a non-owning view over one application data unit.
// Converted to struct to avoid interface boxing; payload memory belongs to
// the enclosing transaction slot or scratch buffer.
type ADU struct {
	Unit     uint8
	Function uint8
	Payload  []byte
}

// PayloadLen returns the payload length in bytes.
func (a ADU) PayloadLen() int { return len(a.Payload) }

// IsException reports whether the function byte carries the exception bit.
func (a ADU) IsException() bool { return a.Function&0x80 != 0 }

// Copy duplicates the view into dst and returns a view over dst.
// dst must hold at least len(a.Payload) bytes.
func (a ADU) Copy(dst []byte) ADU {
	n := copy(dst, a.Payload)
	return ADU{Unit: a.Unit, Function: a.Function, Payload: dst[:n]}
}
