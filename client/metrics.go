// File: client/metrics.go
// Package client implements the master-side metrics block.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

// Metrics counts client activity. Updated from the poll thread only;
// read a copy through Client.Metrics from elsewhere at your own staleness.
type Metrics struct {
	Submitted      uint64
	Completed      uint64
	Retries        uint64
	Timeouts       uint64
	Errors         uint64
	Cancelled      uint64
	PoisonTriggers uint64
	BytesTX        uint64
	BytesRX        uint64
	Responses      uint64
	// ResponseLatencyMS accumulates send-to-response time; divide by
	// Responses for the mean.
	ResponseLatencyMS uint64
	ProtocolErrors    uint64
}
