// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract link contract consumed by the framing layers and
// the client/server engines. Concrete drivers (UART, sockets, stream
// buffers) live outside the core and implement this interface.

package api

// Transport abstracts a non-blocking byte link plus the monotonic clock
// the protocol timing is measured against.
//
// Send and Recv never block: a (0, nil) result means would-block and the
// caller retries on its next poll. Partial writes are legitimate.
type Transport interface {
	// Send writes up to len(p) bytes and returns how many were accepted.
	Send(p []byte) (int, error)

	// Recv reads into p and returns how many bytes were produced.
	Recv(p []byte) (int, error)

	// Now returns milliseconds from a monotonic, nonnegative clock.
	Now() int64

	// Yield gives the scheduler a chance to run; may be a no-op.
	Yield()
}

// MicroClock is optionally implemented by transports able to measure
// sub-millisecond intervals. RTU silent-gap detection and the ISR fast
// path use it when present and clamp to per-frame timeouts otherwise.
type MicroClock interface {
	// NowMicros returns microseconds from the same monotonic origin as Now.
	NowMicros() int64
}
