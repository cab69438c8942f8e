// File: internal/platform/clock_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux

package platform

import "time"

var origin = time.Now()

// NowMillis returns milliseconds from the Go runtime monotonic clock.
func NowMillis() int64 {
	return time.Since(origin).Milliseconds()
}

// NowMicros returns microseconds from the Go runtime monotonic clock.
func NowMicros() int64 {
	return time.Since(origin).Microseconds()
}
