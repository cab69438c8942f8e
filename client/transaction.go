// File: client/transaction.go
// Package client implements the cooperative Modbus master engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import "github.com/momentics/hioload-modbus/api"

// Callback receives the terminal status of a transaction. resp is a view
// into the transaction slot and is only valid for the duration of the
// call (it is a private copy in async-completion mode).
type Callback func(status api.Status, resp api.ADU, userCtx any)

// Request is the submission descriptor.
type Request struct {
	Unit     uint8
	Function uint8
	Payload  []byte

	// Zero values fall back to the engine configuration.
	TimeoutMS      int64
	RetryBudget    int
	RetryBackoffMS int64

	// Broadcast marks a no-response request; it completes after the
	// frame is on the wire.
	Broadcast    bool
	HighPriority bool

	Callback Callback
	UserCtx  any
}

// Handle identifies a submitted transaction for cancellation.
type Handle struct {
	idx int32
	seq uint16
}

// Dispatch classes; lower runs first. Poison leapfrogs normal and
// high-priority work but never other poisons.
const (
	classPoison = iota
	classHigh
	classNormal
)

const noSlot = int32(-1)

// transaction is one pool slot.
type transaction struct {
	queued    bool
	completed bool
	cancelled bool
	broadcast bool
	poison    bool
	class     uint8

	unit     uint8
	function uint8

	reqBuf [api.MaxPDU]byte
	reqLen int

	respBuf      [api.MaxPDU]byte
	respLen      int
	respFunction uint8

	tid uint16

	retryCount  int
	retryBudget int

	timeoutMS   int64
	backoffMS   int64
	deadline    int64
	watchdog    int64
	nextAttempt int64
	submittedAt int64
	sentAt      int64

	callback Callback
	userCtx  any

	next int32 // intrusive pending link
}

func (t *transaction) reset() {
	*t = transaction{next: noSlot}
}
