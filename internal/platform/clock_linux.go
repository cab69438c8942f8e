// File: internal/platform/clock_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package platform

import "golang.org/x/sys/unix"

// NowMillis returns milliseconds from CLOCK_MONOTONIC.
func NowMillis() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Sec*1000 + ts.Nsec/1_000_000
}

// NowMicros returns microseconds from CLOCK_MONOTONIC.
func NowMicros() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Sec*1_000_000 + ts.Nsec/1_000
}
