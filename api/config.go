// File: api/config.go
// Package api defines the typed configuration consumed by the engines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One struct enumerates every recognized option. TinyConfig and FullConfig
// are the discoverability presets.

package api

// Framing selects the wire framing state machine.
type Framing uint8

const (
	FramingRTU Framing = iota
	FramingASCII
	FramingTCP
)

// RTUConfig carries serial timing and duplicate-filter options.
type RTUConfig struct {
	Baud uint32

	// T15Mul and T35Mul scale the computed character-time thresholds.
	// Zero means 1.0.
	T15Mul float64
	T35Mul float64

	// DedupDepth is the number of recently accepted frames remembered by
	// the duplicate filter; zero disables filtering.
	DedupDepth int

	// DedupWindowMS is how long an accepted frame suppresses replays.
	DedupWindowMS int64
}

// ASCIIConfig carries the hex-framing options.
type ASCIIConfig struct {
	// InterCharTimeoutMS aborts a partial line when exceeded. Default 1000.
	InterCharTimeoutMS int64
}

// DiagConfig enables the observability surfaces.
type DiagConfig struct {
	CountersEnabled bool
	TraceEnabled    bool
	TraceDepth      int // event ring depth, zero disables the ring
}

// ISRConfig controls the interrupt fast path.
type ISRConfig struct {
	Enabled         bool
	SuppressLogging bool
	ChunkQueueDepth int // power of two; zero means 16
}

// PoolConfig sizes the caller-owned pools.
type PoolConfig struct {
	Transactions int
	Requests     int
	Regions      int
}

// Config enumerates every option recognized by the core.
type Config struct {
	UnitID  uint8
	Framing Framing

	ResponseTimeoutMS int64
	RetryBudget       int
	RetryBackoffMS    int64

	// WatchdogMS bounds any transaction regardless of retries; zero
	// disables the watchdog.
	WatchdogMS int64

	// PerFCTimeoutMS overrides ResponseTimeoutMS by function code;
	// zero entries fall back to the base timeout.
	PerFCTimeoutMS [256]int64

	// QueueCapacity caps pending transactions; zero means bounded only
	// by the transaction pool.
	QueueCapacity int

	RTU   RTUConfig
	ASCII ASCIIConfig
	Diag  DiagConfig
	ISR   ISRConfig
	Pools PoolConfig

	// AsyncCompletions moves user callbacks onto a dedicated executor
	// instead of running them inside Poll.
	AsyncCompletions bool
}

// TinyConfig is the smallest useful preset: RTU client, short queue,
// counters only.
func TinyConfig() Config {
	return Config{
		UnitID:            1,
		Framing:           FramingRTU,
		ResponseTimeoutMS: 1000,
		RetryBudget:       1,
		RetryBackoffMS:    50,
		RTU:               RTUConfig{Baud: 19200},
		Diag:              DiagConfig{CountersEnabled: true},
		Pools:             PoolConfig{Transactions: 4, Requests: 4, Regions: 4},
	}
}

// FullConfig enables every subsystem with host-class sizing.
func FullConfig() Config {
	return Config{
		UnitID:            1,
		Framing:           FramingTCP,
		ResponseTimeoutMS: 1000,
		RetryBudget:       3,
		RetryBackoffMS:    100,
		WatchdogMS:        30000,
		QueueCapacity:     64,
		RTU: RTUConfig{
			Baud:          115200,
			DedupDepth:    8,
			DedupWindowMS: 50,
		},
		ASCII: ASCIIConfig{InterCharTimeoutMS: 1000},
		Diag: DiagConfig{
			CountersEnabled: true,
			TraceEnabled:    true,
			TraceDepth:      256,
		},
		ISR:   ISRConfig{Enabled: true, SuppressLogging: true, ChunkQueueDepth: 32},
		Pools: PoolConfig{Transactions: 64, Requests: 64, Regions: 16},
	}
}

// Validate rejects configurations the engines cannot honor.
func (c *Config) Validate() error {
	if c.Framing > FramingTCP {
		return ErrInvalidArgument
	}
	if c.ResponseTimeoutMS <= 0 || c.RetryBudget < 0 || c.RetryBackoffMS < 0 {
		return ErrInvalidArgument
	}
	if c.WatchdogMS < 0 || c.QueueCapacity < 0 {
		return ErrInvalidArgument
	}
	if c.Pools.Transactions <= 0 && c.Pools.Requests <= 0 {
		return ErrInvalidArgument
	}
	if c.Framing == FramingRTU && c.RTU.Baud == 0 {
		return ErrInvalidArgument
	}
	if c.ASCII.InterCharTimeoutMS < 0 || c.Diag.TraceDepth < 0 {
		return ErrInvalidArgument
	}
	return nil
}
