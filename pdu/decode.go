// File: pdu/decode.go
// Package pdu implements request/response decoding.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoders validate the same bounds the builders enforce. Malformed
// payloads yield api.ErrInvalidRequest; the Data fields of the decoded
// records are non-owning views into the input.

package pdu

import "github.com/momentics/hioload-modbus/api"

// Request is a decoded request PDU.
type Request struct {
	Function uint8
	Addr     uint16
	Quantity uint16
	Value    uint16 // FC 05/06
	// FC 17 write half.
	WriteAddr     uint16
	WriteQuantity uint16
	// Packed bits (0F) or big-endian register bytes (10/17 write data).
	Data []byte
}

// ParseRequest decodes the payload of a request with function code fc.
func ParseRequest(fc uint8, payload []byte) (Request, error) {
	req := Request{Function: fc}
	switch fc {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHolding, FuncReadInput:
		if len(payload) != 4 {
			return req, api.ErrInvalidRequest
		}
		req.Addr = getU16(payload[0:])
		req.Quantity = getU16(payload[2:])
		if req.Quantity == 0 || int(req.Quantity) > maxReadQuantity(fc) {
			return req, api.ErrInvalidRequest
		}
		if int(req.Addr)+int(req.Quantity) > 0x10000 {
			return req, api.ErrInvalidRequest
		}
	case FuncWriteSingleCoil, FuncWriteSingleReg:
		if len(payload) != 4 {
			return req, api.ErrInvalidRequest
		}
		req.Addr = getU16(payload[0:])
		req.Value = getU16(payload[2:])
		req.Quantity = 1
		if fc == FuncWriteSingleCoil && req.Value != CoilOn && req.Value != CoilOff {
			return req, api.ErrInvalidRequest
		}
	case FuncWriteMultiCoils:
		if len(payload) < 6 {
			return req, api.ErrInvalidRequest
		}
		req.Addr = getU16(payload[0:])
		req.Quantity = getU16(payload[2:])
		bc := int(payload[4])
		if req.Quantity == 0 || req.Quantity > MaxWriteBits {
			return req, api.ErrInvalidRequest
		}
		if bc != BitBytes(int(req.Quantity)) || len(payload) != 5+bc {
			return req, api.ErrInvalidRequest
		}
		if int(req.Addr)+int(req.Quantity) > 0x10000 {
			return req, api.ErrInvalidRequest
		}
		req.Data = payload[5:]
	case FuncWriteMultiRegs:
		if len(payload) < 7 {
			return req, api.ErrInvalidRequest
		}
		req.Addr = getU16(payload[0:])
		req.Quantity = getU16(payload[2:])
		bc := int(payload[4])
		if req.Quantity == 0 || req.Quantity > MaxWriteRegs {
			return req, api.ErrInvalidRequest
		}
		if bc != 2*int(req.Quantity) || len(payload) != 5+bc {
			return req, api.ErrInvalidRequest
		}
		if int(req.Addr)+int(req.Quantity) > 0x10000 {
			return req, api.ErrInvalidRequest
		}
		req.Data = payload[5:]
	case FuncReadWriteRegs:
		if len(payload) < 11 {
			return req, api.ErrInvalidRequest
		}
		req.Addr = getU16(payload[0:])
		req.Quantity = getU16(payload[2:])
		req.WriteAddr = getU16(payload[4:])
		req.WriteQuantity = getU16(payload[6:])
		bc := int(payload[8])
		if req.Quantity == 0 || req.Quantity > MaxReadWriteRead {
			return req, api.ErrInvalidRequest
		}
		if req.WriteQuantity == 0 || req.WriteQuantity > MaxReadWriteWr {
			return req, api.ErrInvalidRequest
		}
		if bc != 2*int(req.WriteQuantity) || len(payload) != 9+bc {
			return req, api.ErrInvalidRequest
		}
		if int(req.Addr)+int(req.Quantity) > 0x10000 ||
			int(req.WriteAddr)+int(req.WriteQuantity) > 0x10000 {
			return req, api.ErrInvalidRequest
		}
		req.Data = payload[9:]
	default:
		return req, api.ErrInvalidRequest
	}
	return req, nil
}

// Response is a decoded response PDU.
type Response struct {
	Function  uint8
	Addr      uint16 // echo responses
	Quantity  uint16 // FC 0F/10 echo
	Value     uint16 // FC 05/06 echo
	ByteCount uint8
	Data      []byte // packed bits or big-endian register bytes
}

// ParseResponse decodes the payload of a non-exception response to fc.
func ParseResponse(fc uint8, payload []byte) (Response, error) {
	resp := Response{Function: fc}
	switch fc {
	case FuncReadCoils, FuncReadDiscreteInputs:
		if len(payload) < 2 {
			return resp, api.ErrInvalidRequest
		}
		resp.ByteCount = payload[0]
		if int(resp.ByteCount) != len(payload)-1 ||
			int(resp.ByteCount) > BitBytes(MaxReadBits) {
			return resp, api.ErrInvalidRequest
		}
		resp.Data = payload[1:]
	case FuncReadHolding, FuncReadInput, FuncReadWriteRegs:
		if len(payload) < 3 {
			return resp, api.ErrInvalidRequest
		}
		resp.ByteCount = payload[0]
		if int(resp.ByteCount) != len(payload)-1 ||
			resp.ByteCount%2 != 0 ||
			int(resp.ByteCount) > 2*MaxReadRegs {
			return resp, api.ErrInvalidRequest
		}
		resp.Data = payload[1:]
	case FuncWriteSingleCoil, FuncWriteSingleReg:
		if len(payload) != 4 {
			return resp, api.ErrInvalidRequest
		}
		resp.Addr = getU16(payload[0:])
		resp.Value = getU16(payload[2:])
		if fc == FuncWriteSingleCoil && resp.Value != CoilOn && resp.Value != CoilOff {
			return resp, api.ErrInvalidRequest
		}
	case FuncWriteMultiCoils, FuncWriteMultiRegs:
		if len(payload) != 4 {
			return resp, api.ErrInvalidRequest
		}
		resp.Addr = getU16(payload[0:])
		resp.Quantity = getU16(payload[2:])
	default:
		return resp, api.ErrInvalidRequest
	}
	return resp, nil
}

// ParseException decodes an exception payload; ok is false when the
// payload is malformed.
func ParseException(payload []byte) (code uint8, ok bool) {
	if len(payload) != 1 || payload[0] == 0 {
		return 0, false
	}
	return payload[0], true
}
