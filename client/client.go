// File: client/client.go
// Package client implements the cooperative Modbus master engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The engine runs entirely inside Poll: it pumps the transport, feeds the
// framer, drives the declarative state machine (idle, waiting-for-response,
// backoff-between-retries) and fires user callbacks. Transport I/O never
// blocks; a would-block result leaves all state untouched until the next
// poll.

package client

import (
	"github.com/rs/xid"

	"github.com/momentics/hioload-modbus/api"
	"github.com/momentics/hioload-modbus/diag"
	"github.com/momentics/hioload-modbus/frame"
	"github.com/momentics/hioload-modbus/fsm"
	"github.com/momentics/hioload-modbus/internal/concurrency"
	"github.com/momentics/hioload-modbus/internal/platform"
	"github.com/momentics/hioload-modbus/pdu"
	"github.com/momentics/hioload-modbus/pool"
)

// State ids of the client machine.
const (
	StateIdle = iota
	StateWaiting
	StateBackoff
)

// Machine events.
const (
	evDispatched fsm.Event = iota
	evCompleted
	evRetry
	evResend
)

const sendBufSize = frame.MaxASCIILine + 8

// Client is the master-side engine.
type Client struct {
	cfg api.Config
	tr  api.Transport
	fr  frame.Framer

	pool    *pool.Pool[transaction]
	pending int32 // head of the intrusive pending list
	queued  int
	current int32

	machine *fsm.Machine

	nextTID uint32

	sendBuf    [sendBufSize]byte
	sendLen    int
	sendOff    int
	sendActive bool

	rxBuf [512]byte

	counters diag.Counters
	metrics  Metrics
	events   diag.Sink
	ring     *diag.Ring
	tracer   *diag.HexTracer
	id       string

	exec      *concurrency.Executor
	submitter *Submitter
	idleFn    func(untilNextMS int64) int64
}

// New builds a client engine over a transport.
func New(cfg api.Config, tr api.Transport) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil || cfg.Pools.Transactions <= 0 {
		return nil, api.ErrInvalidArgument
	}
	var micro func() int64
	if mc, ok := tr.(api.MicroClock); ok {
		micro = mc.NowMicros
	}
	fr, err := frame.NewFramer(frame.ModeClient, &cfg, micro)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:     cfg,
		tr:      tr,
		fr:      fr,
		pool:    pool.New[transaction](cfg.Pools.Transactions),
		pending: noSlot,
		current: noSlot,
		id:      xid.New().String(),
	}
	c.ring = diag.NewRing(cfg.Diag.TraceDepth)
	c.events.Ring = c.ring
	states := []fsm.State{
		{
			Name: "idle", ID: StateIdle,
			DefaultAction: c.stepIdle,
			Transitions: []fsm.Transition{
				{Event: evDispatched, Next: StateWaiting},
			},
		},
		{
			Name: "waiting-for-response", ID: StateWaiting,
			DefaultAction: c.stepWaiting,
			Transitions: []fsm.Transition{
				{Event: evCompleted, Next: StateIdle},
				{Event: evRetry, Next: StateBackoff},
			},
		},
		{
			Name: "backoff-between-retries", ID: StateBackoff,
			DefaultAction: c.stepBackoff,
			Transitions: []fsm.Transition{
				{Event: evResend, Next: StateWaiting},
				{Event: evCompleted, Next: StateIdle},
			},
		},
	}
	c.machine, err = fsm.New(states, StateIdle, 16)
	if err != nil {
		return nil, err
	}
	c.machine.SetObserver(func(from, to int, now int64) {
		c.emit(api.Event{
			Source:    api.SourceClient,
			Type:      api.EventStateEnter,
			Timestamp: now,
			State:     states[to].Name,
		})
	})
	if cfg.AsyncCompletions {
		c.exec = concurrency.NewExecutor()
	}
	return c, nil
}

// Close releases background resources. The engine must not be polled
// afterwards.
func (c *Client) Close() {
	if c.exec != nil {
		c.exec.Close()
	}
}

// SetEventFunc installs the diagnostic event callback.
func (c *Client) SetEventFunc(fn api.EventFunc) { c.events.Fn = fn }

// SetTraceFunc installs the hex-trace sink (honored when tracing is
// enabled in the configuration).
func (c *Client) SetTraceFunc(fn api.TraceFunc) {
	if c.cfg.Diag.TraceEnabled {
		c.tracer = diag.NewHexTracer(fn)
	}
}

// SetIdleHook installs the power-save callback invoked when the engine
// has nothing to do. It receives TimeUntilNextEvent and returns the time
// actually slept.
func (c *Client) SetIdleHook(fn func(untilNextMS int64) int64) { c.idleFn = fn }

// Metrics returns a copy of the counters block.
func (c *Client) Metrics() Metrics { return c.metrics }

// Counters exposes the histogram pair.
func (c *Client) Counters() *diag.Counters { return &c.counters }

// EventRing exposes the capture ring (zero-depth when disabled).
func (c *Client) EventRing() *diag.Ring { return c.ring }

// PoolStats returns the transaction pool statistics.
func (c *Client) PoolStats() pool.Stats { return c.pool.Stats() }

// ID returns the engine instance id stamped on events.
func (c *Client) ID() string { return c.id }

// State returns the current machine state id.
func (c *Client) State() int { return c.machine.Current() }

// Submit queues a request and returns its handle.
func (c *Client) Submit(req Request) (Handle, error) {
	platform.AssertNotISR("client.Submit")
	if req.Function == 0 || len(req.Payload) > api.MaxPayload {
		return Handle{}, api.ErrInvalidArgument
	}
	if req.Broadcast && req.Function == pdu.FuncReadWriteRegs {
		// Broadcast implies no response; FC23 mandates one.
		return Handle{}, api.ErrInvalidRequest
	}
	if c.cfg.QueueCapacity > 0 && c.queued >= c.cfg.QueueCapacity {
		return Handle{}, api.ErrNoResources
	}
	tx := c.pool.Acquire()
	if tx == nil {
		return Handle{}, api.ErrNoResources
	}
	tx.reset()
	tx.unit = req.Unit
	tx.function = req.Function
	tx.reqLen = copy(tx.reqBuf[:], req.Payload)
	tx.broadcast = req.Broadcast
	tx.callback = req.Callback
	tx.userCtx = req.UserCtx
	tx.timeoutMS = c.timeoutFor(req.Function, req.TimeoutMS)
	tx.retryBudget = req.RetryBudget
	if tx.retryBudget == 0 {
		tx.retryBudget = c.cfg.RetryBudget
	}
	tx.backoffMS = req.RetryBackoffMS
	if tx.backoffMS == 0 {
		tx.backoffMS = c.cfg.RetryBackoffMS
	}
	tx.class = classNormal
	if req.HighPriority {
		tx.class = classHigh
	}
	c.nextTID++
	tx.tid = uint16(c.nextTID)
	tx.submittedAt = c.tr.Now()
	idx := c.pool.IndexOf(tx)
	c.link(idx)
	if c.cfg.Diag.CountersEnabled {
		c.counters.CountFC(req.Function)
	}
	c.metrics.Submitted++
	c.emit(api.Event{
		Source:    api.SourceClient,
		Type:      api.EventTxSubmit,
		Timestamp: tx.submittedAt,
		Unit:      tx.unit,
		Function:  tx.function,
		TID:       tx.tid,
	})
	return Handle{idx: idx, seq: tx.tid}, nil
}

// SubmitPoison queues the drain sentinel: it leapfrogs all queued work,
// cancels it, and returns the engine to idle.
func (c *Client) SubmitPoison(cb Callback) (Handle, error) {
	platform.AssertNotISR("client.SubmitPoison")
	tx := c.pool.Acquire()
	if tx == nil {
		return Handle{}, api.ErrNoResources
	}
	tx.reset()
	tx.poison = true
	tx.class = classPoison
	tx.callback = cb
	c.nextTID++
	tx.tid = uint16(c.nextTID)
	tx.submittedAt = c.tr.Now()
	idx := c.pool.IndexOf(tx)
	c.link(idx)
	c.metrics.Submitted++
	return Handle{idx: idx, seq: tx.tid}, nil
}

// Cancel marks a transaction for cancellation. Its callback fires with
// the cancelled status on a following poll; an in-flight transmission is
// not aborted mid-frame.
func (c *Client) Cancel(h Handle) error {
	platform.AssertNotISR("client.Cancel")
	if !c.pool.InUse(h.idx) {
		return api.ErrInvalidArgument
	}
	tx := c.pool.At(h.idx)
	if tx.tid != h.seq || tx.completed {
		return api.ErrInvalidArgument
	}
	tx.cancelled = true
	return nil
}

// Poll advances the engine one cooperative step.
func (c *Client) Poll() {
	platform.AssertNotISR("client.Poll")
	if c.submitter != nil {
		c.submitter.drain()
	}
	now := c.tr.Now()
	c.pumpRecv(now)
	for {
		in, ok := c.fr.Next(now)
		if !ok {
			break
		}
		c.handleInbound(in, now)
	}
	c.sweepCancelled(now)
	for i := 0; i < 16; i++ {
		c.machine.Run(now)
		if c.machine.Pending() == 0 {
			break
		}
	}
	c.maybeIdle(now)
	c.tr.Yield()
}

// TimeUntilNextEvent returns milliseconds until the nearest deadline, 0
// when work is imminent, or -1 when fully idle.
func (c *Client) TimeUntilNextEvent() int64 {
	return c.timeUntilNextAt(c.tr.Now())
}

func (c *Client) timeUntilNextAt(now int64) int64 {
	if c.sendActive || c.queued > 0 {
		return 0
	}
	best := int64(-1)
	upd := func(at int64) {
		if at <= 0 {
			return
		}
		d := at - now
		if d < 0 {
			d = 0
		}
		if best < 0 || d < best {
			best = d
		}
	}
	if c.current != noSlot {
		tx := c.pool.At(c.current)
		switch c.machine.Current() {
		case StateWaiting:
			upd(tx.deadline)
		case StateBackoff:
			upd(tx.nextAttempt)
		}
		upd(tx.watchdog)
	}
	if rtu, ok := c.fr.(*frame.RTU); ok {
		upd(rtu.NextBoundaryMS(now))
	}
	return best
}

// --- pending list ---

// link inserts idx keeping classes ordered and FIFO within a class.
func (c *Client) link(idx int32) {
	tx := c.pool.At(idx)
	tx.queued = true
	tx.next = noSlot
	cl := tx.class
	var prev int32 = noSlot
	cur := c.pending
	for cur != noSlot && c.pool.At(cur).class <= cl {
		prev = cur
		cur = c.pool.At(cur).next
	}
	tx.next = cur
	if prev == noSlot {
		c.pending = idx
	} else {
		c.pool.At(prev).next = idx
	}
	c.queued++
}

func (c *Client) unlink(idx int32) {
	var prev int32 = noSlot
	for cur := c.pending; cur != noSlot; cur = c.pool.At(cur).next {
		if cur == idx {
			if prev == noSlot {
				c.pending = c.pool.At(cur).next
			} else {
				c.pool.At(prev).next = c.pool.At(cur).next
			}
			c.pool.At(cur).queued = false
			c.pool.At(cur).next = noSlot
			c.queued--
			return
		}
		prev = cur
	}
}

func (c *Client) popPending() int32 {
	idx := c.pending
	if idx == noSlot {
		return noSlot
	}
	tx := c.pool.At(idx)
	c.pending = tx.next
	tx.next = noSlot
	tx.queued = false
	c.queued--
	return idx
}

// --- machine steps ---

func (c *Client) stepIdle(now int64) {
	if c.sendActive {
		return
	}
	idx := c.popPending()
	if idx == noSlot {
		return
	}
	tx := c.pool.At(idx)
	if tx.poison {
		c.triggerPoison(tx, now)
		return
	}
	if tx.cancelled {
		c.finish(tx, api.NewStatus(api.KindCancelled), now)
		return
	}
	c.current = idx
	tx.deadline = now + tx.timeoutMS
	if c.cfg.WatchdogMS > 0 && tx.watchdog == 0 {
		tx.watchdog = now + c.cfg.WatchdogMS
	}
	// Post before sending so a failure's retry event lands after the
	// state switch.
	c.machine.Post(evDispatched)
	c.beginSend(tx, now)
	if tx.broadcast && !c.sendActive && c.current == idx {
		c.finish(tx, api.OK, now)
	}
}

func (c *Client) stepWaiting(now int64) {
	if c.current == noSlot {
		c.machine.Post(evCompleted)
		return
	}
	tx := c.pool.At(c.current)
	if c.sendActive && !c.flushSend(tx, now) {
		return
	}
	if tx.broadcast {
		c.finish(tx, api.OK, now)
		return
	}
	if tx.cancelled {
		c.finish(tx, api.NewStatus(api.KindCancelled), now)
		return
	}
	if tx.watchdog > 0 && now >= tx.watchdog {
		c.metrics.Timeouts++
		c.finish(tx, api.NewStatus(api.KindTimeout), now)
		return
	}
	if now >= tx.deadline {
		c.metrics.Timeouts++
		c.failOrRetry(tx, api.NewStatus(api.KindTimeout), now)
	}
}

func (c *Client) stepBackoff(now int64) {
	if c.current == noSlot {
		c.machine.Post(evCompleted)
		return
	}
	tx := c.pool.At(c.current)
	if tx.cancelled {
		c.finish(tx, api.NewStatus(api.KindCancelled), now)
		return
	}
	if tx.watchdog > 0 && now >= tx.watchdog {
		c.metrics.Timeouts++
		c.finish(tx, api.NewStatus(api.KindTimeout), now)
		return
	}
	if now < tx.nextAttempt {
		return
	}
	c.metrics.Retries++
	tx.deadline = now + tx.timeoutMS
	c.machine.Post(evResend)
	c.beginSend(tx, now)
}

// failOrRetry applies the retry policy for timeout/crc/transport failures.
func (c *Client) failOrRetry(tx *transaction, st api.Status, now int64) {
	if tx.retryCount < tx.retryBudget {
		tx.retryCount++
		tx.nextAttempt = now + tx.backoffMS
		c.machine.Post(evRetry)
		return
	}
	c.finish(tx, st, now)
}

// triggerPoison drains all queued work and returns to idle.
func (c *Client) triggerPoison(px *transaction, now int64) {
	c.metrics.PoisonTriggers++
	for {
		idx := c.popPending()
		if idx == noSlot {
			break
		}
		tx := c.pool.At(idx)
		if tx.poison {
			// A later poison survives the drain and runs on its turn.
			c.link(idx)
			break
		}
		c.finish(tx, api.NewStatus(api.KindCancelled), now)
	}
	c.finish(px, api.OK, now)
}

// --- wire I/O ---

func (c *Client) beginSend(tx *transaction, now int64) {
	adu := api.ADU{Unit: tx.unit, Function: tx.function, Payload: tx.reqBuf[:tx.reqLen]}
	n, err := c.fr.Encode(c.sendBuf[:], tx.tid, adu)
	if err != nil {
		c.finish(tx, api.NewStatus(api.KindInvalidArgument), now)
		return
	}
	if c.tracer.Enabled() {
		c.tracer.Trace(api.TraceTX, adu)
	}
	c.sendLen = n
	c.sendOff = 0
	c.sendActive = true
	tx.sentAt = now
	c.flushSend(tx, now)
}

// flushSend pushes buffered bytes; returns true when the frame is fully
// on the wire.
func (c *Client) flushSend(tx *transaction, now int64) bool {
	for c.sendOff < c.sendLen {
		n, err := c.tr.Send(c.sendBuf[c.sendOff:c.sendLen])
		if err != nil && !api.IsWouldBlock(err) {
			c.sendActive = false
			c.metrics.Errors++
			c.failOrRetry(tx, api.NewStatus(api.KindTransport), now)
			return false
		}
		if n <= 0 {
			return false
		}
		c.sendOff += n
		c.metrics.BytesTX += uint64(n)
	}
	c.sendActive = false
	return true
}

func (c *Client) pumpRecv(now int64) {
	for {
		n, err := c.tr.Recv(c.rxBuf[:])
		if err != nil && !api.IsWouldBlock(err) {
			c.metrics.Errors++
			if c.current != noSlot && c.machine.Current() == StateWaiting {
				c.failOrRetry(c.pool.At(c.current), api.NewStatus(api.KindTransport), now)
			}
			return
		}
		if n <= 0 {
			return
		}
		c.metrics.BytesRX += uint64(n)
		c.fr.Feed(c.rxBuf[:n], now)
	}
}

func (c *Client) handleInbound(in frame.Inbound, now int64) {
	if c.current == noSlot || c.machine.Current() != StateWaiting {
		c.metrics.ProtocolErrors++
		return
	}
	tx := c.pool.At(c.current)
	if c.cfg.Framing == api.FramingTCP {
		if in.TID != tx.tid {
			c.metrics.ProtocolErrors++
			return
		}
	} else if in.ADU.Unit != tx.unit {
		c.metrics.ProtocolErrors++
		return
	}
	if in.ADU.Function&^pdu.ExceptionBit != tx.function {
		c.metrics.ProtocolErrors++
		return
	}
	if c.tracer.Enabled() {
		c.tracer.Trace(api.TraceRX, in.ADU)
	}
	if in.ADU.IsException() {
		code, ok := pdu.ParseException(in.ADU.Payload)
		if !ok {
			c.metrics.ProtocolErrors++
			return
		}
		c.metrics.Responses++
		c.metrics.ResponseLatencyMS += uint64(now - tx.sentAt)
		c.finish(tx, api.NewException(code), now)
		return
	}
	if _, err := pdu.ParseResponse(tx.function, in.ADU.Payload); err != nil {
		c.metrics.ProtocolErrors++
		c.finish(tx, api.NewStatus(api.KindInvalidRequest), now)
		return
	}
	tx.respFunction = in.ADU.Function
	tx.respLen = copy(tx.respBuf[:], in.ADU.Payload)
	c.metrics.Responses++
	c.metrics.ResponseLatencyMS += uint64(now - tx.sentAt)
	c.finish(tx, api.OK, now)
}

// --- completion ---

func (c *Client) sweepCancelled(now int64) {
	cur := c.pending
	for cur != noSlot {
		next := c.pool.At(cur).next
		if c.pool.At(cur).cancelled {
			c.unlink(cur)
			c.finish(c.pool.At(cur), api.NewStatus(api.KindCancelled), now)
		}
		cur = next
	}
}

// finish terminates a transaction exactly once: metrics, diagnostics,
// user callback, pool release.
func (c *Client) finish(tx *transaction, st api.Status, now int64) {
	if tx.completed {
		return
	}
	tx.completed = true
	idx := c.pool.IndexOf(tx)
	wasCurrent := idx == c.current
	if wasCurrent {
		c.current = noSlot
	}
	c.metrics.Completed++
	switch {
	case st.Kind() == api.KindCancelled:
		c.metrics.Cancelled++
	case !st.IsOK():
		c.metrics.Errors++
	}
	if c.cfg.Diag.CountersEnabled {
		c.counters.CountStatus(st)
	}
	c.emit(api.Event{
		Source:    api.SourceClient,
		Type:      api.EventTxComplete,
		Timestamp: now,
		Unit:      tx.unit,
		Function:  tx.function,
		TID:       tx.tid,
		Status:    st,
	})
	cb := tx.callback
	ctx := tx.userCtx
	resp := api.ADU{Unit: tx.unit, Function: tx.respFunction, Payload: tx.respBuf[:tx.respLen]}
	if cb != nil && c.exec != nil {
		// Async delivery outlives the slot: hand the executor a copy.
		dup := make([]byte, tx.respLen)
		copy(dup, tx.respBuf[:tx.respLen])
		respCopy := api.ADU{Unit: resp.Unit, Function: resp.Function, Payload: dup}
		fn := cb
		_ = c.exec.Submit(func() { fn(st, respCopy, ctx) })
		cb = nil
	}
	if cb != nil {
		cb(st, resp, ctx)
	}
	c.pool.Release(tx)
	if wasCurrent {
		c.machine.Post(evCompleted)
	}
}

func (c *Client) emit(ev api.Event) {
	ev.EngineID = c.id
	c.events.Emit(ev)
}

func (c *Client) maybeIdle(now int64) {
	if c.idleFn == nil || c.queued > 0 || c.current != noSlot || c.sendActive {
		return
	}
	c.idleFn(c.timeUntilNextAt(now))
}

func (c *Client) timeoutFor(fc uint8, override int64) int64 {
	if override > 0 {
		return override
	}
	if t := c.cfg.PerFCTimeoutMS[fc]; t > 0 {
		return t
	}
	return c.cfg.ResponseTimeoutMS
}
