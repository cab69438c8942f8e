// File: server/server.go
// Package server implements the cooperative Modbus slave engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Inbound frames are staged into a fixed request pool and dispatched in
// priority order (high before normal, FIFO within a class). Each request
// resolves to a region access or a synthesized exception; responses go
// out in completion order. Broadcast requests are executed but never
// answered.

package server

import (
	"github.com/rs/xid"

	"github.com/momentics/hioload-modbus/api"
	"github.com/momentics/hioload-modbus/diag"
	"github.com/momentics/hioload-modbus/frame"
	"github.com/momentics/hioload-modbus/fsm"
	"github.com/momentics/hioload-modbus/internal/platform"
	"github.com/momentics/hioload-modbus/pdu"
	"github.com/momentics/hioload-modbus/pool"
)

// State ids of the server machine.
const (
	StateIdle = iota
	StateProcessing
	StateDraining
)

// Machine events.
const (
	evAccepted fsm.Event = iota
	evDone
	evDrain
	evDrained
)

const noSlot = int32(-1)

// request is one pool slot.
type request struct {
	queued       bool
	highPriority bool
	poison       bool
	broadcast    bool

	unit     uint8
	function uint8

	payload [api.MaxPDU]byte
	plen    int

	tid uint16

	enqueuedAt int64
	startedAt  int64
	deadline   int64

	next int32
}

// PriorityFunc classifies inbound requests; true marks high priority.
type PriorityFunc func(unit, function uint8) bool

// Server is the slave-side engine.
type Server struct {
	cfg api.Config
	tr  api.Transport
	fr  frame.Framer

	regions     [numKinds][]Region
	regionCap   int
	regionCount int

	pool    *pool.Pool[request]
	pending int32
	queued  int
	current int32

	machine  *fsm.Machine
	priority PriorityFunc

	sendBuf    [frame.MaxASCIILine + 8]byte
	sendLen    int
	sendOff    int
	sendActive bool

	rxBuf   [512]byte
	respBuf [api.MaxPDU]byte
	scratch [pdu.MaxReadRegs]uint16
	bitBuf  [pdu.MaxBitBytes]byte

	counters diag.Counters
	metrics  Metrics
	events   diag.Sink
	ring     *diag.Ring
	tracer   *diag.HexTracer
	id       string
}

// New builds a server engine over a transport.
func New(cfg api.Config, tr api.Transport) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil || cfg.Pools.Requests <= 0 {
		return nil, api.ErrInvalidArgument
	}
	var micro func() int64
	if mc, ok := tr.(api.MicroClock); ok {
		micro = mc.NowMicros
	}
	fr, err := frame.NewFramer(frame.ModeServer, &cfg, micro)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		tr:        tr,
		fr:        fr,
		regionCap: cfg.Pools.Regions,
		pool:      pool.New[request](cfg.Pools.Requests),
		pending:   noSlot,
		current:   noSlot,
		id:        xid.New().String(),
	}
	if s.regionCap <= 0 {
		s.regionCap = 16
	}
	s.ring = diag.NewRing(cfg.Diag.TraceDepth)
	s.events.Ring = s.ring
	states := []fsm.State{
		{
			Name: "idle", ID: StateIdle,
			DefaultAction: s.stepIdle,
			Transitions: []fsm.Transition{
				{Event: evAccepted, Next: StateProcessing},
				{Event: evDrain, Next: StateDraining},
			},
		},
		{
			Name: "processing", ID: StateProcessing,
			DefaultAction: s.stepProcessing,
			Transitions: []fsm.Transition{
				{Event: evDone, Next: StateIdle},
				{Event: evDrain, Next: StateDraining},
			},
		},
		{
			Name: "draining", ID: StateDraining,
			DefaultAction: s.stepDraining,
			Transitions: []fsm.Transition{
				{Event: evDrained, Next: StateIdle},
			},
		},
	}
	s.machine, err = fsm.New(states, StateIdle, 16)
	if err != nil {
		return nil, err
	}
	s.machine.SetObserver(func(from, to int, now int64) {
		s.emit(api.Event{
			Source:    api.SourceServer,
			Type:      api.EventStateEnter,
			Timestamp: now,
			State:     states[to].Name,
		})
	})
	return s, nil
}

// SetPriorityFunc installs the QoS classifier.
func (s *Server) SetPriorityFunc(fn PriorityFunc) { s.priority = fn }

// SetEventFunc installs the diagnostic event callback.
func (s *Server) SetEventFunc(fn api.EventFunc) { s.events.Fn = fn }

// SetTraceFunc installs the hex-trace sink.
func (s *Server) SetTraceFunc(fn api.TraceFunc) {
	if s.cfg.Diag.TraceEnabled {
		s.tracer = diag.NewHexTracer(fn)
	}
}

// Metrics returns a copy of the counters block.
func (s *Server) Metrics() Metrics { return s.metrics }

// Counters exposes the histogram pair.
func (s *Server) Counters() *diag.Counters { return &s.counters }

// EventRing exposes the capture ring.
func (s *Server) EventRing() *diag.Ring { return s.ring }

// PoolStats returns the request pool statistics.
func (s *Server) PoolStats() pool.Stats { return s.pool.Stats() }

// ID returns the engine instance id stamped on events.
func (s *Server) ID() string { return s.id }

// State returns the current machine state id.
func (s *Server) State() int { return s.machine.Current() }

// Drain flushes all queued requests and returns the engine to idle.
func (s *Server) Drain() { s.machine.Post(evDrain) }

// Poll advances the engine one cooperative step.
func (s *Server) Poll() {
	platform.AssertNotISR("server.Poll")
	now := s.tr.Now()
	s.pumpRecv(now)
	for {
		in, ok := s.fr.Next(now)
		if !ok {
			break
		}
		s.intake(in, now)
	}
	for i := 0; i < 16; i++ {
		s.machine.Run(now)
		if s.machine.Pending() == 0 {
			break
		}
	}
	s.tr.Yield()
}

func (s *Server) pumpRecv(now int64) {
	for {
		n, err := s.tr.Recv(s.rxBuf[:])
		if err != nil && !api.IsWouldBlock(err) {
			return
		}
		if n <= 0 {
			return
		}
		s.metrics.BytesRX += uint64(n)
		s.fr.Feed(s.rxBuf[:n], now)
	}
}

// intake stages one inbound frame into the request queue.
func (s *Server) intake(in frame.Inbound, now int64) {
	unit := in.ADU.Unit
	if unit != s.cfg.UnitID && unit != api.Broadcast {
		s.metrics.Ignored++
		return
	}
	if s.tracer.Enabled() {
		s.tracer.Trace(api.TraceRX, in.ADU)
	}
	if s.cfg.QueueCapacity > 0 && s.queued >= s.cfg.QueueCapacity {
		s.metrics.Dropped++
		return
	}
	rq := s.pool.Acquire()
	if rq == nil {
		s.metrics.Dropped++
		return
	}
	*rq = request{next: noSlot}
	rq.unit = unit
	rq.function = in.ADU.Function
	rq.plen = copy(rq.payload[:], in.ADU.Payload)
	rq.tid = in.TID
	rq.broadcast = unit == api.Broadcast
	rq.enqueuedAt = now
	if s.priority != nil {
		rq.highPriority = s.priority(unit, rq.function)
	}
	s.link(s.pool.IndexOf(rq))
	s.metrics.Accepted++
	if s.cfg.Diag.CountersEnabled {
		s.counters.CountFC(rq.function)
	}
	s.emit(api.Event{
		Source:    api.SourceServer,
		Type:      api.EventReqAccept,
		Timestamp: now,
		Unit:      unit,
		Function:  rq.function,
		TID:       rq.tid,
	})
}

func (s *Server) link(idx int32) {
	rq := s.pool.At(idx)
	rq.queued = true
	rq.next = noSlot
	var prev int32 = noSlot
	cur := s.pending
	for cur != noSlot && (s.pool.At(cur).highPriority || !rq.highPriority) {
		prev = cur
		cur = s.pool.At(cur).next
	}
	rq.next = cur
	if prev == noSlot {
		s.pending = idx
	} else {
		s.pool.At(prev).next = idx
	}
	s.queued++
}

func (s *Server) popPending() int32 {
	idx := s.pending
	if idx == noSlot {
		return noSlot
	}
	rq := s.pool.At(idx)
	s.pending = rq.next
	rq.next = noSlot
	rq.queued = false
	s.queued--
	return idx
}

// --- machine steps ---

func (s *Server) stepIdle(now int64) {
	if s.sendActive && !s.flushSend(now) {
		return
	}
	if s.pending == noSlot {
		return
	}
	s.current = s.popPending()
	s.pool.At(s.current).startedAt = now
	s.machine.Post(evAccepted)
}

func (s *Server) stepProcessing(now int64) {
	if s.current == noSlot {
		s.machine.Post(evDone)
		return
	}
	rq := s.pool.At(s.current)
	s.dispatch(rq, now)
	if budget := s.cfg.PerFCTimeoutMS[rq.function]; budget > 0 {
		if s.tr.Now()-rq.startedAt > budget {
			s.metrics.Timeouts++
		}
	}
	s.emit(api.Event{
		Source:    api.SourceServer,
		Type:      api.EventReqComplete,
		Timestamp: now,
		Unit:      rq.unit,
		Function:  rq.function,
		TID:       rq.tid,
	})
	s.pool.Release(rq)
	s.current = noSlot
	s.machine.Post(evDone)
}

func (s *Server) stepDraining(now int64) {
	for {
		idx := s.popPending()
		if idx == noSlot {
			break
		}
		s.metrics.Dropped++
		s.pool.Release(s.pool.At(idx))
	}
	s.machine.Post(evDrained)
}

// --- dispatch ---

// dispatch runs the classification pipeline on one request.
func (s *Server) dispatch(rq *request, now int64) {
	fc := rq.function
	if !pdu.IsSupported(fc) {
		s.respondException(rq, api.ExIllegalFunction, now)
		return
	}
	req, err := pdu.ParseRequest(fc, rq.payload[:rq.plen])
	if err != nil {
		s.respondException(rq, api.ExIllegalDataValue, now)
		return
	}
	switch fc {
	case pdu.FuncReadCoils:
		s.handleReadBits(rq, req, KindCoil, now)
	case pdu.FuncReadDiscreteInputs:
		s.handleReadBits(rq, req, KindDiscrete, now)
	case pdu.FuncReadHolding:
		s.handleReadRegs(rq, req, KindHolding, now)
	case pdu.FuncReadInput:
		s.handleReadRegs(rq, req, KindInput, now)
	case pdu.FuncWriteSingleCoil:
		s.handleWriteSingleCoil(rq, req, now)
	case pdu.FuncWriteSingleReg:
		s.handleWriteSingleReg(rq, req, now)
	case pdu.FuncWriteMultiCoils:
		s.handleWriteCoils(rq, req, now)
	case pdu.FuncWriteMultiRegs:
		s.handleWriteRegs(rq, req, now)
	case pdu.FuncReadWriteRegs:
		s.handleReadWrite(rq, req, now)
	}
}

func (s *Server) handleReadBits(rq *request, req pdu.Request, kind RegionKind, now int64) {
	if rq.broadcast {
		return // a read makes no sense on the broadcast address
	}
	r := s.findRegion(kind, req.Addr, int(req.Quantity))
	if r == nil {
		s.respondException(rq, api.ExIllegalDataAddress, now)
		return
	}
	bc := pdu.BitBytes(int(req.Quantity))
	for i := 0; i < bc; i++ {
		s.bitBuf[i] = 0
	}
	if st := readBits(r, req.Addr, req.Quantity, s.bitBuf[:bc]); !st.IsOK() {
		s.respondStatus(rq, st, now)
		return
	}
	n, _ := pdu.BuildResponseReadBits(s.respBuf[:], s.bitBuf[:bc], req.Quantity)
	s.respond(rq, rq.function, s.respBuf[:n], now)
}

func (s *Server) handleReadRegs(rq *request, req pdu.Request, kind RegionKind, now int64) {
	if rq.broadcast {
		return
	}
	r := s.findRegion(kind, req.Addr, int(req.Quantity))
	if r == nil {
		s.respondException(rq, api.ExIllegalDataAddress, now)
		return
	}
	out := s.scratch[:req.Quantity]
	if st := readRegisters(r, req.Addr, req.Quantity, out); !st.IsOK() {
		s.respondStatus(rq, st, now)
		return
	}
	n, _ := pdu.BuildResponseReadRegisters(s.respBuf[:], out)
	s.respond(rq, rq.function, s.respBuf[:n], now)
}

func (s *Server) handleWriteSingleCoil(rq *request, req pdu.Request, now int64) {
	r := s.findRegion(KindCoil, req.Addr, 1)
	if r == nil {
		s.respondException(rq, api.ExIllegalDataAddress, now)
		return
	}
	var packed [1]byte
	if req.Value == pdu.CoilOn {
		packed[0] = 1
	}
	if st := writeBits(r, req.Addr, 1, packed[:]); !st.IsOK() {
		s.respondStatus(rq, st, now)
		return
	}
	n, _ := pdu.BuildResponseEcho(s.respBuf[:], req.Addr, req.Value)
	s.respond(rq, rq.function, s.respBuf[:n], now)
}

func (s *Server) handleWriteSingleReg(rq *request, req pdu.Request, now int64) {
	r := s.findRegion(KindHolding, req.Addr, 1)
	if r == nil {
		s.respondException(rq, api.ExIllegalDataAddress, now)
		return
	}
	vals := [1]uint16{req.Value}
	if st := writeRegisters(r, req.Addr, 1, vals[:]); !st.IsOK() {
		s.respondStatus(rq, st, now)
		return
	}
	n, _ := pdu.BuildResponseEcho(s.respBuf[:], req.Addr, req.Value)
	s.respond(rq, rq.function, s.respBuf[:n], now)
}

func (s *Server) handleWriteCoils(rq *request, req pdu.Request, now int64) {
	r := s.findRegion(KindCoil, req.Addr, int(req.Quantity))
	if r == nil {
		s.respondException(rq, api.ExIllegalDataAddress, now)
		return
	}
	if st := writeBits(r, req.Addr, req.Quantity, req.Data); !st.IsOK() {
		s.respondStatus(rq, st, now)
		return
	}
	n, _ := pdu.BuildResponseEcho(s.respBuf[:], req.Addr, req.Quantity)
	s.respond(rq, rq.function, s.respBuf[:n], now)
}

func (s *Server) handleWriteRegs(rq *request, req pdu.Request, now int64) {
	r := s.findRegion(KindHolding, req.Addr, int(req.Quantity))
	if r == nil {
		s.respondException(rq, api.ExIllegalDataAddress, now)
		return
	}
	vals := s.scratch[:req.Quantity]
	pdu.GetRegisters(vals, req.Data)
	if st := writeRegisters(r, req.Addr, req.Quantity, vals); !st.IsOK() {
		s.respondStatus(rq, st, now)
		return
	}
	n, _ := pdu.BuildResponseEcho(s.respBuf[:], req.Addr, req.Quantity)
	s.respond(rq, rq.function, s.respBuf[:n], now)
}

func (s *Server) handleReadWrite(rq *request, req pdu.Request, now int64) {
	if rq.broadcast {
		return
	}
	wr := s.findRegion(KindHolding, req.WriteAddr, int(req.WriteQuantity))
	rd := s.findRegion(KindHolding, req.Addr, int(req.Quantity))
	if wr == nil || rd == nil {
		s.respondException(rq, api.ExIllegalDataAddress, now)
		return
	}
	// Write before read, per the function's definition.
	vals := s.scratch[:req.WriteQuantity]
	pdu.GetRegisters(vals, req.Data)
	if st := writeRegisters(wr, req.WriteAddr, req.WriteQuantity, vals); !st.IsOK() {
		s.respondStatus(rq, st, now)
		return
	}
	out := s.scratch[:req.Quantity]
	if st := readRegisters(rd, req.Addr, req.Quantity, out); !st.IsOK() {
		s.respondStatus(rq, st, now)
		return
	}
	n, _ := pdu.BuildResponseReadRegisters(s.respBuf[:], out)
	s.respond(rq, rq.function, s.respBuf[:n], now)
}

// --- responses ---

// respondStatus maps a region/callback status onto the wire exception.
func (s *Server) respondStatus(rq *request, st api.Status, now int64) {
	code := api.ExServerFailure
	if st.IsException() {
		code = st.Exception()
	}
	s.respondException(rq, code, now)
}

func (s *Server) respondException(rq *request, code uint8, now int64) {
	s.metrics.Exceptions++
	if s.cfg.Diag.CountersEnabled {
		s.counters.CountStatus(api.NewException(code))
	}
	if rq.broadcast {
		return
	}
	n, _ := pdu.BuildException(s.respBuf[:], code)
	s.respond(rq, rq.function|pdu.ExceptionBit, s.respBuf[:n], now)
}

func (s *Server) respond(rq *request, function uint8, payload []byte, now int64) {
	if rq.broadcast {
		s.metrics.Broadcasts++
		return
	}
	adu := api.ADU{Unit: rq.unit, Function: function, Payload: payload}
	n, err := s.fr.Encode(s.sendBuf[:], rq.tid, adu)
	if err != nil {
		return
	}
	if s.tracer.Enabled() {
		s.tracer.Trace(api.TraceTX, adu)
	}
	s.sendLen = n
	s.sendOff = 0
	s.sendActive = true
	s.metrics.Responded++
	s.flushSend(now)
}

func (s *Server) flushSend(now int64) bool {
	for s.sendOff < s.sendLen {
		n, err := s.tr.Send(s.sendBuf[s.sendOff:s.sendLen])
		if err != nil && !api.IsWouldBlock(err) {
			s.sendActive = false
			return true
		}
		if n <= 0 {
			return false
		}
		s.sendOff += n
		s.metrics.BytesTX += uint64(n)
	}
	s.sendActive = false
	return true
}

func (s *Server) emit(ev api.Event) {
	ev.EngineID = s.id
	s.events.Emit(ev)
}
