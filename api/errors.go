// Package api
// Author: momentics <momentics@gmail.com>
//
// Sentinel errors aligned with the Status taxonomy. ErrWouldBlock is the
// iox ecosystem signal: a non-failure condition meaning "retry on the next
// poll", never a terminal transaction status.

package api

import (
	"errors"

	"code.hybscloud.com/iox"
)

// Sentinel errors used across the library. Each maps 1:1 onto a StatusKind.
var (
	ErrInvalidArgument = errors.New("modbus: invalid argument")
	ErrTimeout         = errors.New("modbus: timeout")
	ErrTransportIO     = errors.New("modbus: transport i/o failure")
	ErrFrameCheck      = errors.New("modbus: frame check failure")
	ErrInvalidRequest  = errors.New("modbus: invalid request")
	ErrCancelled       = errors.New("modbus: cancelled")
	ErrNoResources     = errors.New("modbus: no resources")
	ErrOther           = errors.New("modbus: unclassified error")
)

// ErrWouldBlock indicates a non-blocking operation cannot proceed right now.
// Alias of iox.ErrWouldBlock for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err is the would-block signal, including
// wrapped forms.
func IsWouldBlock(err error) bool { return iox.IsWouldBlock(err) }
