// File: pdu/encode.go
// Package pdu implements request/response encoding.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// All builders write the payload (the bytes after the function code) into
// caller-owned dst and return the payload length. Bounds violations yield
// api.ErrInvalidArgument before any byte is written.

package pdu

import "github.com/momentics/hioload-modbus/api"

// BuildRequestRead encodes the payload of FC 01/02/03/04.
func BuildRequestRead(dst []byte, fc uint8, addr, quantity uint16) (int, error) {
	max := maxReadQuantity(fc)
	if max == 0 {
		return 0, api.ErrInvalidArgument
	}
	if quantity == 0 || int(quantity) > max {
		return 0, api.ErrInvalidArgument
	}
	if int(addr)+int(quantity) > 0x10000 {
		return 0, api.ErrInvalidArgument
	}
	if len(dst) < 4 {
		return 0, api.ErrInvalidArgument
	}
	putU16(dst[0:], addr)
	putU16(dst[2:], quantity)
	return 4, nil
}

// BuildRequestWriteSingle encodes the payload of FC 05/06.
// FC05 accepts only the CoilOn/CoilOff wire values.
func BuildRequestWriteSingle(dst []byte, fc uint8, addr, value uint16) (int, error) {
	switch fc {
	case FuncWriteSingleCoil:
		if value != CoilOn && value != CoilOff {
			return 0, api.ErrInvalidArgument
		}
	case FuncWriteSingleReg:
	default:
		return 0, api.ErrInvalidArgument
	}
	if len(dst) < 4 {
		return 0, api.ErrInvalidArgument
	}
	putU16(dst[0:], addr)
	putU16(dst[2:], value)
	return 4, nil
}

// BuildRequestWriteCoils encodes the payload of FC 0F from packed bits.
func BuildRequestWriteCoils(dst []byte, addr, quantity uint16, packed []byte) (int, error) {
	if quantity == 0 || quantity > MaxWriteBits {
		return 0, api.ErrInvalidArgument
	}
	if int(addr)+int(quantity) > 0x10000 {
		return 0, api.ErrInvalidArgument
	}
	bc := BitBytes(int(quantity))
	if len(packed) < bc || len(dst) < 5+bc {
		return 0, api.ErrInvalidArgument
	}
	putU16(dst[0:], addr)
	putU16(dst[2:], quantity)
	dst[4] = uint8(bc)
	copy(dst[5:], packed[:bc])
	return 5 + bc, nil
}

// BuildRequestWriteRegisters encodes the payload of FC 10.
func BuildRequestWriteRegisters(dst []byte, addr uint16, values []uint16) (int, error) {
	n := len(values)
	if n == 0 || n > MaxWriteRegs {
		return 0, api.ErrInvalidArgument
	}
	if int(addr)+n > 0x10000 {
		return 0, api.ErrInvalidArgument
	}
	if len(dst) < 5+2*n {
		return 0, api.ErrInvalidArgument
	}
	putU16(dst[0:], addr)
	putU16(dst[2:], uint16(n))
	dst[4] = uint8(2 * n)
	PutRegisters(dst[5:], values)
	return 5 + 2*n, nil
}

// BuildRequestReadWrite encodes the payload of FC 17.
func BuildRequestReadWrite(dst []byte, readAddr, readQty, writeAddr uint16, values []uint16) (int, error) {
	wn := len(values)
	if readQty == 0 || readQty > MaxReadWriteRead {
		return 0, api.ErrInvalidArgument
	}
	if wn == 0 || wn > MaxReadWriteWr {
		return 0, api.ErrInvalidArgument
	}
	if int(readAddr)+int(readQty) > 0x10000 || int(writeAddr)+wn > 0x10000 {
		return 0, api.ErrInvalidArgument
	}
	if len(dst) < 9+2*wn {
		return 0, api.ErrInvalidArgument
	}
	putU16(dst[0:], readAddr)
	putU16(dst[2:], readQty)
	putU16(dst[4:], writeAddr)
	putU16(dst[6:], uint16(wn))
	dst[8] = uint8(2 * wn)
	PutRegisters(dst[9:], values)
	return 9 + 2*wn, nil
}

// BuildResponseReadBits encodes the payload of a FC 01/02 response from
// packed bits.
func BuildResponseReadBits(dst []byte, packed []byte, quantity uint16) (int, error) {
	if quantity == 0 || quantity > MaxReadBits {
		return 0, api.ErrInvalidArgument
	}
	bc := BitBytes(int(quantity))
	if len(packed) < bc || len(dst) < 1+bc {
		return 0, api.ErrInvalidArgument
	}
	dst[0] = uint8(bc)
	copy(dst[1:], packed[:bc])
	return 1 + bc, nil
}

// BuildResponseReadRegisters encodes the payload of a FC 03/04/17 response.
func BuildResponseReadRegisters(dst []byte, values []uint16) (int, error) {
	n := len(values)
	if n == 0 || n > MaxReadRegs {
		return 0, api.ErrInvalidArgument
	}
	if len(dst) < 1+2*n {
		return 0, api.ErrInvalidArgument
	}
	dst[0] = uint8(2 * n)
	PutRegisters(dst[1:], values)
	return 1 + 2*n, nil
}

// BuildResponseEcho encodes the payload echoed by FC 05/06 (addr, value)
// and FC 0F/10 (addr, quantity).
func BuildResponseEcho(dst []byte, addr, word uint16) (int, error) {
	if len(dst) < 4 {
		return 0, api.ErrInvalidArgument
	}
	putU16(dst[0:], addr)
	putU16(dst[2:], word)
	return 4, nil
}

// BuildException encodes an exception payload. The caller sets the
// function byte to fc|ExceptionBit.
func BuildException(dst []byte, code uint8) (int, error) {
	if len(dst) < 1 || code == 0 {
		return 0, api.ErrInvalidArgument
	}
	dst[0] = code
	return 1, nil
}
