// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-modbus/api"
	"github.com/momentics/hioload-modbus/fake"
	"github.com/momentics/hioload-modbus/frame"
	"github.com/momentics/hioload-modbus/pdu"
)

func tcpConfig() api.Config {
	return api.Config{
		UnitID:            0x11,
		Framing:           api.FramingTCP,
		ResponseTimeoutMS: 1000,
		Diag:              api.DiagConfig{CountersEnabled: true},
		Pools:             api.PoolConfig{Transactions: 8, Requests: 8, Regions: 8},
	}
}

func newTCPServer(t *testing.T, cfg api.Config) (*Server, *fake.Transport) {
	t.Helper()
	tr := fake.NewTransport(nil)
	s, err := New(cfg, tr)
	require.NoError(t, err)
	return s, tr
}

// push frames one MBAP request onto the server's receive side.
func push(t *testing.T, tr *fake.Transport, tid uint16, unit, function uint8, payload []byte) {
	t.Helper()
	var buf [300]byte
	n, err := frame.NewTCP().Encode(buf[:], tid, api.ADU{Unit: unit, Function: function, Payload: payload})
	require.NoError(t, err)
	tr.PushRecv(buf[:n])
}

// collect decodes every MBAP response the server emitted.
func collect(t *testing.T, tr *fake.Transport) []frame.Inbound {
	t.Helper()
	dec := frame.NewTCP()
	dec.Feed(tr.Sent(), 0)
	var out []frame.Inbound
	for {
		in, ok := dec.Next(0)
		if !ok {
			return out
		}
		out = append(out, in)
	}
}

func poll(s *Server, n int) {
	for i := 0; i < n; i++ {
		s.Poll()
	}
}

func readPayload(t *testing.T, addr, quantity uint16, fc uint8) []byte {
	t.Helper()
	var buf [8]byte
	n, err := pdu.BuildRequestRead(buf[:], fc, addr, quantity)
	require.NoError(t, err)
	return append([]byte(nil), buf[:n]...)
}

func TestServerReadHolding(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	require.NoError(t, s.AddRegion(KindHolding, Region{
		Start: 0x6B, Count: 3, Regs: []uint16{0xAE41, 0x5652, 0x4340},
	}))
	push(t, tr, 0x0001, 0x11, pdu.FuncReadHolding, readPayload(t, 0x6B, 3, pdu.FuncReadHolding))
	poll(s, 4)
	resp := collect(t, tr)
	require.Len(t, resp, 1)
	assert.Equal(t, uint16(0x0001), resp[0].TID)
	assert.Equal(t, pdu.FuncReadHolding, resp[0].ADU.Function)
	parsed, err := pdu.ParseResponse(pdu.FuncReadHolding, resp[0].ADU.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAE, 0x41, 0x56, 0x52, 0x43, 0x40}, parsed.Data)
	assert.Equal(t, uint64(1), s.Metrics().Responded)
	assert.Equal(t, 0, s.PoolStats().InUse)
}

func TestServerUnsupportedFunction(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	push(t, tr, 7, 0x11, 0x2B, []byte{0x0E, 0x01, 0x00})
	poll(s, 4)
	resp := collect(t, tr)
	require.Len(t, resp, 1)
	assert.Equal(t, uint8(0x2B|pdu.ExceptionBit), resp[0].ADU.Function)
	require.Len(t, resp[0].ADU.Payload, 1)
	assert.Equal(t, api.ExIllegalFunction, resp[0].ADU.Payload[0])
}

func TestServerRegionMissAndStraddle(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	require.NoError(t, s.AddRegion(KindHolding, Region{Start: 0, Count: 0x40, Regs: make([]uint16, 0x40)}))
	require.NoError(t, s.AddRegion(KindHolding, Region{Start: 0x40, Count: 0x40, Regs: make([]uint16, 0x40)}))
	// Entirely outside.
	push(t, tr, 1, 0x11, pdu.FuncReadHolding, readPayload(t, 0x1000, 1, pdu.FuncReadHolding))
	// Straddling two adjacent regions is still illegal.
	push(t, tr, 2, 0x11, pdu.FuncReadHolding, readPayload(t, 0x3E, 4, pdu.FuncReadHolding))
	poll(s, 8)
	resp := collect(t, tr)
	require.Len(t, resp, 2)
	for _, r := range resp {
		assert.Equal(t, api.ExIllegalDataAddress, r.ADU.Payload[0])
	}
}

func TestServerMalformedBodyYieldsIllegalValue(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	// Quantity zero is invalid for FC03.
	push(t, tr, 1, 0x11, pdu.FuncReadHolding, []byte{0x00, 0x00, 0x00, 0x00})
	poll(s, 4)
	resp := collect(t, tr)
	require.Len(t, resp, 1)
	assert.Equal(t, api.ExIllegalDataValue, resp[0].ADU.Payload[0])
}

func TestServerReadOnlyRegionRejectsWrites(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	require.NoError(t, s.AddRegion(KindHolding, Region{
		Start: 0, Count: 4, Regs: make([]uint16, 4), ReadOnly: true,
	}))
	var buf [8]byte
	n, _ := pdu.BuildRequestWriteSingle(buf[:], pdu.FuncWriteSingleReg, 0, 1)
	push(t, tr, 1, 0x11, pdu.FuncWriteSingleReg, buf[:n])
	poll(s, 4)
	resp := collect(t, tr)
	require.Len(t, resp, 1)
	assert.Equal(t, api.ExIllegalDataValue, resp[0].ADU.Payload[0])
}

func TestServerCallbackFailureBecomesServerFailure(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	require.NoError(t, s.AddRegion(KindHolding, Region{
		Start: 0, Count: 4,
		ReadRegs: func(any, uint16, uint16, []uint16) api.Status {
			return api.NewStatus(api.KindOther)
		},
	}))
	push(t, tr, 1, 0x11, pdu.FuncReadHolding, readPayload(t, 0, 1, pdu.FuncReadHolding))
	poll(s, 4)
	resp := collect(t, tr)
	require.Len(t, resp, 1)
	assert.Equal(t, api.ExServerFailure, resp[0].ADU.Payload[0])
}

func TestServerVirtualRegion(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	require.NoError(t, s.AddRegion(KindInput, Region{
		Start: 0x10, Count: 4,
		ReadRegs: func(_ any, addr, quantity uint16, out []uint16) api.Status {
			for i := range out {
				out[i] = addr + uint16(i)
			}
			return api.OK
		},
	}))
	push(t, tr, 1, 0x11, pdu.FuncReadInput, readPayload(t, 0x11, 2, pdu.FuncReadInput))
	poll(s, 4)
	resp := collect(t, tr)
	require.Len(t, resp, 1)
	parsed, err := pdu.ParseResponse(pdu.FuncReadInput, resp[0].ADU.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x00, 0x12}, parsed.Data)
}

func TestServerCoilWriteAndPacking(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	bits := make([]byte, 2)
	require.NoError(t, s.AddRegion(KindCoil, Region{Start: 8, Count: 16, Bits: bits}))
	// FC05 on at coil 10 -> storage bit 2.
	var buf [16]byte
	n, _ := pdu.BuildRequestWriteSingle(buf[:], pdu.FuncWriteSingleCoil, 10, pdu.CoilOn)
	push(t, tr, 1, 0x11, pdu.FuncWriteSingleCoil, buf[:n])
	poll(s, 4)
	assert.Equal(t, byte(0b00000100), bits[0])
	// FC0F writes a pattern at coil 16 -> second storage byte.
	n, _ = pdu.BuildRequestWriteCoils(buf[:], 16, 5, []byte{0b00010110})
	push(t, tr, 2, 0x11, pdu.FuncWriteMultiCoils, buf[:n])
	poll(s, 4)
	assert.Equal(t, byte(0b00010110), bits[1])
	resp := collect(t, tr)
	require.Len(t, resp, 2)
	echo, err := pdu.ParseResponse(pdu.FuncWriteMultiCoils, resp[1].ADU.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(16), echo.Addr)
	assert.Equal(t, uint16(5), echo.Quantity)
}

func TestServerReadWriteRegisters(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	regs := []uint16{10, 20, 30, 40}
	require.NoError(t, s.AddRegion(KindHolding, Region{Start: 0, Count: 4, Regs: regs}))
	var buf [32]byte
	n, _ := pdu.BuildRequestReadWrite(buf[:], 0, 2, 2, []uint16{0x0BB8})
	push(t, tr, 1, 0x11, pdu.FuncReadWriteRegs, buf[:n])
	poll(s, 4)
	// Write happens before the read, but on disjoint addresses here.
	assert.Equal(t, uint16(0x0BB8), regs[2])
	resp := collect(t, tr)
	require.Len(t, resp, 1)
	parsed, err := pdu.ParseResponse(pdu.FuncReadWriteRegs, resp[0].ADU.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x0A, 0x00, 0x14}, parsed.Data)
}

func TestServerBroadcastExecutesSilently(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	regs := make([]uint16, 4)
	require.NoError(t, s.AddRegion(KindHolding, Region{Start: 0, Count: 4, Regs: regs}))
	var buf [8]byte
	n, _ := pdu.BuildRequestWriteSingle(buf[:], pdu.FuncWriteSingleReg, 1, 0x77)
	push(t, tr, 1, api.Broadcast, pdu.FuncWriteSingleReg, buf[:n])
	poll(s, 4)
	assert.Equal(t, uint16(0x77), regs[1])
	assert.Empty(t, tr.Sent())
	assert.Equal(t, uint64(1), s.Metrics().Broadcasts)
}

func TestServerIgnoresForeignUnit(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	push(t, tr, 1, 0x22, pdu.FuncReadHolding, readPayload(t, 0, 1, pdu.FuncReadHolding))
	poll(s, 4)
	assert.Empty(t, tr.Sent())
	assert.Equal(t, uint64(1), s.Metrics().Ignored)
	assert.Equal(t, uint64(0), s.Metrics().Accepted)
}

func TestServerQueueOverflowDrops(t *testing.T) {
	cfg := tcpConfig()
	cfg.QueueCapacity = 1
	s, tr := newTCPServer(t, cfg)
	require.NoError(t, s.AddRegion(KindHolding, Region{Start: 0, Count: 4, Regs: make([]uint16, 4)}))
	for tid := uint16(1); tid <= 3; tid++ {
		push(t, tr, tid, 0x11, pdu.FuncReadHolding, readPayload(t, 0, 1, pdu.FuncReadHolding))
	}
	poll(s, 8)
	assert.Equal(t, uint64(2), s.Metrics().Dropped)
	resp := collect(t, tr)
	require.Len(t, resp, 1)
	assert.Equal(t, uint16(1), resp[0].TID)
}

func TestServerPriorityOrdering(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	require.NoError(t, s.AddRegion(KindHolding, Region{Start: 0, Count: 4, Regs: make([]uint16, 4)}))
	s.SetPriorityFunc(func(_, function uint8) bool {
		return function == pdu.FuncWriteSingleReg
	})
	push(t, tr, 1, 0x11, pdu.FuncReadHolding, readPayload(t, 0, 1, pdu.FuncReadHolding))
	push(t, tr, 2, 0x11, pdu.FuncReadHolding, readPayload(t, 0, 1, pdu.FuncReadHolding))
	var buf [8]byte
	n, _ := pdu.BuildRequestWriteSingle(buf[:], pdu.FuncWriteSingleReg, 0, 5)
	push(t, tr, 3, 0x11, pdu.FuncWriteSingleReg, buf[:n])
	poll(s, 12)
	resp := collect(t, tr)
	require.Len(t, resp, 3)
	assert.Equal(t, uint16(3), resp[0].TID, "high-priority request must be served first")
	assert.Equal(t, uint16(1), resp[1].TID)
	assert.Equal(t, uint16(2), resp[2].TID)
}

func TestServerDrainFlushesQueue(t *testing.T) {
	s, tr := newTCPServer(t, tcpConfig())
	require.NoError(t, s.AddRegion(KindHolding, Region{Start: 0, Count: 4, Regs: make([]uint16, 4)}))
	for tid := uint16(1); tid <= 3; tid++ {
		push(t, tr, tid, 0x11, pdu.FuncReadHolding, readPayload(t, 0, 1, pdu.FuncReadHolding))
	}
	// Drain before any dispatch: everything is dropped, nothing answered.
	s.Drain()
	poll(s, 3)
	assert.Equal(t, uint64(3), s.Metrics().Dropped)
	assert.Empty(t, collect(t, tr))
	assert.Equal(t, 0, s.PoolStats().InUse)
	assert.Equal(t, StateIdle, s.State())
}

func TestServerRegionValidation(t *testing.T) {
	s, _ := newTCPServer(t, tcpConfig())
	require.NoError(t, s.AddRegion(KindHolding, Region{Start: 0, Count: 4, Regs: make([]uint16, 4)}))
	// Overlap within a table is rejected.
	err := s.AddRegion(KindHolding, Region{Start: 2, Count: 4, Regs: make([]uint16, 4)})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	// The same range under another kind is fine.
	assert.NoError(t, s.AddRegion(KindInput, Region{Start: 0, Count: 4, Regs: make([]uint16, 4)}))
	// Storage must match the declared count.
	err = s.AddRegion(KindHolding, Region{Start: 10, Count: 4, Regs: make([]uint16, 2)})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	// Address space overflow.
	err = s.AddRegion(KindHolding, Region{Start: 0xFFFF, Count: 2, Regs: make([]uint16, 2)})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	// No backing at all.
	err = s.AddRegion(KindHolding, Region{Start: 20, Count: 2})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
