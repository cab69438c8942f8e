// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted transport implementing api.Transport. Tests push inbound
// bytes, inspect what was sent, and inject errors or partial writes.

package fake

import (
	"sync"

	"github.com/momentics/hioload-modbus/api"
)

// Transport is a fake implementation of api.Transport for testing.
type Transport struct {
	mu        sync.Mutex
	clock     *Clock
	recvQueue []byte
	sent      []byte
	sendErr   error
	recvErr   error
	sendLimit int // max bytes accepted per Send; 0 means unlimited
	blockSend bool
	yields    int
	peer      *Transport
}

// NewTransport creates a fake transport on the given clock.
func NewTransport(clock *Clock) *Transport {
	if clock == nil {
		clock = NewClock()
	}
	return &Transport{clock: clock}
}

// NewLoopback returns two cross-wired transports on a shared clock:
// what one side sends, the other receives.
func NewLoopback(clock *Clock) (*Transport, *Transport) {
	if clock == nil {
		clock = NewClock()
	}
	a := NewTransport(clock)
	b := NewTransport(clock)
	a.peer = b
	b.peer = a
	return a, b
}

// Send implements api.Transport.
func (t *Transport) Send(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return 0, t.sendErr
	}
	if t.blockSend {
		return 0, nil
	}
	n := len(p)
	if t.sendLimit > 0 && n > t.sendLimit {
		n = t.sendLimit
	}
	t.sent = append(t.sent, p[:n]...)
	if t.peer != nil {
		t.peer.mu.Lock()
		t.peer.recvQueue = append(t.peer.recvQueue, p[:n]...)
		t.peer.mu.Unlock()
	}
	return n, nil
}

// Recv implements api.Transport.
func (t *Transport) Recv(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recvErr != nil {
		return 0, t.recvErr
	}
	if len(t.recvQueue) == 0 {
		return 0, nil // would-block
	}
	n := copy(p, t.recvQueue)
	t.recvQueue = t.recvQueue[n:]
	return n, nil
}

// Now implements api.Transport.
func (t *Transport) Now() int64 { return t.clock.Now() }

// NowMicros implements api.MicroClock.
func (t *Transport) NowMicros() int64 { return t.clock.NowMicros() }

// Yield implements api.Transport.
func (t *Transport) Yield() {
	t.mu.Lock()
	t.yields++
	t.mu.Unlock()
}

// Clock returns the backing clock.
func (t *Transport) Clock() *Clock { return t.clock }

// PushRecv queues bytes for the next Recv.
func (t *Transport) PushRecv(p []byte) {
	t.mu.Lock()
	t.recvQueue = append(t.recvQueue, p...)
	t.mu.Unlock()
}

// Sent returns a copy of everything sent so far.
func (t *Transport) Sent() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// ClearSent resets the send capture.
func (t *Transport) ClearSent() {
	t.mu.Lock()
	t.sent = t.sent[:0]
	t.mu.Unlock()
}

// SetSendError makes Send fail with err; nil restores normal operation.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

// SetRecvError makes Recv fail with err.
func (t *Transport) SetRecvError(err error) {
	t.mu.Lock()
	t.recvErr = err
	t.mu.Unlock()
}

// SetSendLimit caps bytes accepted per Send, forcing partial writes.
func (t *Transport) SetSendLimit(n int) {
	t.mu.Lock()
	t.sendLimit = n
	t.mu.Unlock()
}

// SetBlockSend makes Send report would-block until released.
func (t *Transport) SetBlockSend(block bool) {
	t.mu.Lock()
	t.blockSend = block
	t.mu.Unlock()
}

var _ api.Transport = (*Transport)(nil)
var _ api.MicroClock = (*Transport)(nil)
