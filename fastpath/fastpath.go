// File: fastpath/fastpath.go
// Package fastpath is the ISR-safe RX ingest and TX kickoff path.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The state shared between interrupt and thread context is a pair of SPSC
// descriptor queues, the SPSC byte ring that stages RX in byte mode, and
// atomic flags and counters. The ISR side never allocates, never takes a
// lock and never logs; the thread side (the framing layer) consumes RX
// chunks and stages TX descriptors. TxCompleteFromISR chains straight
// into TryTxFromISR so a half-duplex link turns around without waking the
// thread.

package fastpath

import (
	"code.hybscloud.com/atomix"

	"github.com/momentics/hioload-modbus/api"
	"github.com/momentics/hioload-modbus/internal/concurrency"
	"github.com/momentics/hioload-modbus/internal/platform"
	"github.com/momentics/hioload-modbus/pool"
)

// minRxChunk is address + function + CRC, the smallest RTU fragment worth
// staging.
const minRxChunk = 4

// Stats is the fast-path counter snapshot.
type Stats struct {
	FastTurnarounds   uint64
	ThreadTurnarounds uint64
	QueueFull         uint64
	Overruns          uint64
	MinTurnaroundUS   int64
	MaxTurnaroundUS   int64
	AvgTurnaroundUS   int64
}

// rxRingSize is the byte-mode staging capacity (power of two).
const rxRingSize = 1024

// FastPath wires an interrupt-driven link to the thread-side framer.
type FastPath struct {
	rx *concurrency.SPSC[[]byte]
	tx *concurrency.SPSC[[]byte]

	// Byte mode, for UARTs that interrupt per character instead of per
	// DMA chunk.
	rxRing    concurrency.ByteRing
	rxStorage [rxRingSize]byte

	txInProgress atomix.Uint64
	curTx        []byte

	inRx atomix.Uint64 // re-entry detector

	rxCompleteUS atomix.Uint64

	fastCount   atomix.Uint64
	threadCount atomix.Uint64
	queueFull   atomix.Uint64
	overruns    atomix.Uint64
	minTurnUS   atomix.Uint64
	maxTurnUS   atomix.Uint64
	sumTurnUS   atomix.Uint64
	turnSamples atomix.Uint64

	micro func() int64
}

// New builds a fast path with the configured queue depth. micro is the
// microsecond clock; nil falls back to the platform clock.
func New(cfg api.ISRConfig, micro func() int64) (*FastPath, error) {
	depth := cfg.ChunkQueueDepth
	if depth == 0 {
		depth = 16
	}
	rx, err := concurrency.NewSPSC[[]byte](depth)
	if err != nil {
		return nil, err
	}
	tx, err := concurrency.NewSPSC[[]byte](depth)
	if err != nil {
		return nil, err
	}
	if micro == nil {
		micro = platform.NowMicros
	}
	f := &FastPath{rx: rx, tx: tx, micro: micro}
	if err := f.rxRing.Init(f.rxStorage[:]); err != nil {
		return nil, err
	}
	f.minTurnUS.StoreRelease(^uint64(0))
	return f, nil
}

// OnRxByteFromISR stages a single received character (byte-interrupt
// UARTs). Returns false when the staging ring is full.
func (f *FastPath) OnRxByteFromISR(b byte) bool {
	if !f.rxRing.Push(b) {
		f.queueFull.AddAcqRel(1)
		return false
	}
	f.rxCompleteUS.StoreRelease(uint64(f.micro()))
	return true
}

// RxView returns a zero-copy scatter-gather view over the staged bytes.
// Thread side; pass the segments to the framer, then ConsumeRx.
func (f *FastPath) RxView() (pool.Iovec, int) {
	base, head, size := f.rxRing.Snapshot()
	v, err := pool.FromRing(base, head, size)
	if err != nil {
		return pool.Iovec{}, 0
	}
	return v, size
}

// ConsumeRx releases n staged bytes after the framer consumed them.
func (f *FastPath) ConsumeRx(n int) { f.rxRing.Skip(n) }

// OnRxChunkFromISR stages one received chunk descriptor. The memory stays
// owned by the driver until the thread side consumes it.
func (f *FastPath) OnRxChunkFromISR(chunk []byte) bool {
	if !f.inRx.CompareAndSwapAcqRel(0, 1) {
		f.overruns.AddAcqRel(1)
		return false
	}
	defer f.inRx.StoreRelease(0)
	if len(chunk) < minRxChunk {
		return false
	}
	if !f.rx.Enqueue(chunk) {
		f.queueFull.AddAcqRel(1)
		return false
	}
	f.rxCompleteUS.StoreRelease(uint64(f.micro()))
	return true
}

// NextRxChunk hands the oldest staged chunk to the framing layer.
// Thread side only.
func (f *FastPath) NextRxChunk() ([]byte, bool) {
	f.threadCount.AddAcqRel(1)
	return f.rx.Dequeue()
}

// QueueTx stages a frame for interrupt-driven transmission. Thread side.
func (f *FastPath) QueueTx(buf []byte) bool {
	if !f.tx.Enqueue(buf) {
		f.queueFull.AddAcqRel(1)
		return false
	}
	return true
}

// TryTxFromISR arms the next transmission if one is staged and none is in
// flight. True tells the handler to kick off DMA.
func (f *FastPath) TryTxFromISR() bool {
	if !f.txInProgress.CompareAndSwapAcqRel(0, 1) {
		return false
	}
	buf, ok := f.tx.Dequeue()
	if !ok {
		f.txInProgress.StoreRelease(0)
		return false
	}
	f.curTx = buf
	f.recordTurnaround()
	return true
}

// GetTxBufferFromISR returns the armed transmission buffer.
func (f *FastPath) GetTxBufferFromISR() []byte { return f.curTx }

// TxCompleteFromISR clears the in-flight flag and immediately chains the
// next staged frame, if any.
func (f *FastPath) TxCompleteFromISR() bool {
	f.curTx = nil
	f.txInProgress.StoreRelease(0)
	return f.TryTxFromISR()
}

// recordTurnaround samples RX-complete to TX-start.
func (f *FastPath) recordTurnaround() {
	at := f.rxCompleteUS.LoadAcquire()
	if at == 0 {
		return
	}
	d := uint64(f.micro()) - at
	f.fastCount.AddAcqRel(1)
	f.sumTurnUS.AddAcqRel(d)
	f.turnSamples.AddAcqRel(1)
	if d < f.minTurnUS.LoadAcquire() {
		f.minTurnUS.StoreRelease(d)
	}
	if d > f.maxTurnUS.LoadAcquire() {
		f.maxTurnUS.StoreRelease(d)
	}
}

// Stats returns a counter snapshot.
func (f *FastPath) Stats() Stats {
	s := Stats{
		FastTurnarounds:   f.fastCount.LoadAcquire(),
		ThreadTurnarounds: f.threadCount.LoadAcquire(),
		QueueFull:         f.queueFull.LoadAcquire(),
		Overruns:          f.overruns.LoadAcquire(),
		MaxTurnaroundUS:   int64(f.maxTurnUS.LoadAcquire()),
	}
	if min := f.minTurnUS.LoadAcquire(); min != ^uint64(0) {
		s.MinTurnaroundUS = int64(min)
	}
	if n := f.turnSamples.LoadAcquire(); n > 0 {
		s.AvgTurnaroundUS = int64(f.sumTurnUS.LoadAcquire() / n)
	}
	return s
}

// RxHighWater exposes RX queue pressure for diagnostics.
func (f *FastPath) RxHighWater() int { return f.rx.HighWater() }
