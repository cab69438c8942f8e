// File: api/status.go
// Package api defines the unified status taxonomy shared by every layer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Status carries exactly one of: success, a library-level error kind, or
// a Modbus protocol exception. It is a two-byte value type so it can cross
// ISR/thread boundaries and sit inside pool slots without allocation.

package api

// StatusKind enumerates the library-level result categories.
type StatusKind uint8

const (
	KindOK StatusKind = iota
	KindInvalidArgument
	KindTimeout
	KindTransport
	KindCRC
	KindInvalidRequest
	KindCancelled
	KindNoResources
	KindOther
	KindException // discriminant for the protocol-exception axis

	numKinds = int(KindException)
)

// Modbus exception codes as defined by the protocol specification.
const (
	ExIllegalFunction    uint8 = 0x01
	ExIllegalDataAddress uint8 = 0x02
	ExIllegalDataValue   uint8 = 0x03
	ExServerFailure      uint8 = 0x04
	ExAcknowledge        uint8 = 0x05
	ExServerBusy         uint8 = 0x06
	ExNegativeAck        uint8 = 0x07
	ExMemoryParity       uint8 = 0x08
	ExGatewayPath        uint8 = 0x0A
	ExGatewayTarget      uint8 = 0x0B
)

// Status is the tagged result value used at every protocol boundary.
// The zero value is success.
type Status struct {
	kind StatusKind
	code uint8 // exception code when kind == KindException
}

// OK is the success status.
var OK = Status{}

// NewStatus builds a library-level status from a kind.
func NewStatus(kind StatusKind) Status {
	if kind >= KindException {
		kind = KindOther
	}
	return Status{kind: kind}
}

// NewException builds a protocol-exception status.
func NewException(code uint8) Status {
	return Status{kind: KindException, code: code}
}

// IsOK reports success.
func (s Status) IsOK() bool { return s.kind == KindOK }

// IsException reports whether the status carries a Modbus exception.
func (s Status) IsException() bool { return s.kind == KindException }

// Kind returns the library-level category.
func (s Status) Kind() StatusKind { return s.kind }

// Exception returns the exception code, zero when not an exception.
func (s Status) Exception() uint8 {
	if s.kind != KindException {
		return 0
	}
	return s.code
}

var kindNames = [...]string{
	"ok",
	"invalid-argument",
	"timeout",
	"transport-io",
	"crc",
	"invalid-request",
	"cancelled",
	"no-resources",
	"other",
}

// Name returns a short constant name for logging. Allocation-free.
func (s Status) Name() string {
	if s.kind == KindException {
		switch s.code {
		case ExIllegalFunction:
			return "illegal-function"
		case ExIllegalDataAddress:
			return "illegal-data-address"
		case ExIllegalDataValue:
			return "illegal-data-value"
		case ExServerFailure:
			return "server-device-failure"
		case ExAcknowledge:
			return "acknowledge"
		case ExServerBusy:
			return "server-device-busy"
		case ExNegativeAck:
			return "negative-acknowledge"
		case ExMemoryParity:
			return "memory-parity-error"
		case ExGatewayPath:
			return "gateway-path-unavailable"
		case ExGatewayTarget:
			return "gateway-target-failure"
		default:
			return "exception"
		}
	}
	if int(s.kind) < len(kindNames) {
		return kindNames[s.kind]
	}
	return "other"
}

// NumStatusSlots is the size of the dense histogram index space:
// the library kinds followed by the ten defined exception codes.
const NumStatusSlots = numKinds + 10

// Slot maps the status onto a dense histogram index. Unknown exception
// codes collapse onto the slot of KindOther.
func (s Status) Slot() int {
	if s.kind != KindException {
		return int(s.kind)
	}
	switch s.code {
	case ExIllegalFunction, ExIllegalDataAddress, ExIllegalDataValue,
		ExServerFailure, ExAcknowledge, ExServerBusy, ExNegativeAck,
		ExMemoryParity:
		return numKinds + int(s.code) - 1
	case ExGatewayPath:
		return numKinds + 8
	case ExGatewayTarget:
		return numKinds + 9
	default:
		return int(KindOther)
	}
}

// Err maps the status onto the package sentinel errors so callers can use
// errors.Is. Success returns nil; exceptions return an Exception value.
func (s Status) Err() error {
	switch s.kind {
	case KindOK:
		return nil
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindTimeout:
		return ErrTimeout
	case KindTransport:
		return ErrTransportIO
	case KindCRC:
		return ErrFrameCheck
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindCancelled:
		return ErrCancelled
	case KindNoResources:
		return ErrNoResources
	case KindException:
		return Exception(s.code)
	default:
		return ErrOther
	}
}

// Exception is the error form of a Modbus protocol exception.
type Exception uint8

// Error implements the error interface with a constant string per code.
func (e Exception) Error() string {
	return "modbus: " + NewException(uint8(e)).Name()
}
