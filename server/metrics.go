// File: server/metrics.go
// Package server implements the slave-side metrics block.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

// Metrics counts server activity. Updated from the poll thread only.
type Metrics struct {
	Accepted   uint64
	Responded  uint64
	Exceptions uint64
	Broadcasts uint64
	Ignored    uint64
	Dropped    uint64
	// Timeouts counts handlers that ran past their per-function budget;
	// the response is still emitted.
	Timeouts uint64
	BytesTX  uint64
	BytesRX  uint64
}
