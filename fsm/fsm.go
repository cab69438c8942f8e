// File: fsm/fsm.go
// Package fsm is a declarative, data-driven state machine engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// States, transitions and guards are plain data known at construction
// time. Events enter through an SPSC ring whose producer side is
// ISR-safe; Run consumes one event per invocation, fires the first
// guard-satisfied transition, and otherwise runs the current state's
// default action. A per-state timeout synthesizes its own event.

package fsm

import (
	"github.com/momentics/hioload-modbus/api"
	"github.com/momentics/hioload-modbus/internal/concurrency"
)

// Event is an opaque event code defined by the machine's owner.
type Event uint32

// EventTimeout is reserved for per-state timeout expiry.
const EventTimeout Event = ^Event(0)

// Transition reacts to one event in one state.
type Transition struct {
	Event Event
	Next  int // target state id
	// Action runs after the guard passes and before the state switches.
	Action func(now int64)
	// Guard, when non-nil, must return true for the transition to fire.
	Guard func() bool
}

// State is one node of the machine.
type State struct {
	Name        string
	ID          int
	Transitions []Transition
	// DefaultAction runs when Run finds no event to consume.
	DefaultAction func(now int64)
	// TimeoutMS, when positive, makes Run synthesize EventTimeout (without
	// queuing it) once that long has passed in the state and no event is
	// pending.
	TimeoutMS int64
}

// Observer is notified on state entry. Used for diagnostics.
type Observer func(from, to int, now int64)

// Machine executes a state table.
type Machine struct {
	states    []State
	current   int
	enteredAt int64
	events    *concurrency.SPSC[Event]
	observer  Observer
}

// New builds a machine. States must be indexed by their ID; eventDepth is
// the power-of-two event ring capacity.
func New(states []State, initial int, eventDepth int) (*Machine, error) {
	if initial < 0 || initial >= len(states) {
		return nil, api.ErrInvalidArgument
	}
	for i := range states {
		if states[i].ID != i {
			return nil, api.ErrInvalidArgument
		}
	}
	q, err := concurrency.NewSPSC[Event](eventDepth)
	if err != nil {
		return nil, err
	}
	return &Machine{states: states, current: initial, events: q}, nil
}

// SetObserver installs the state-entry hook.
func (m *Machine) SetObserver(o Observer) { m.observer = o }

// Post enqueues an event; false when the ring is full. Safe from a single
// producer context, including an ISR.
func (m *Machine) Post(ev Event) bool { return m.events.Enqueue(ev) }

// Current returns the current state id.
func (m *Machine) Current() int { return m.current }

// Pending returns the number of queued events.
func (m *Machine) Pending() int { return m.events.Len() }

// StateName returns the current state's name.
func (m *Machine) StateName() string { return m.states[m.current].Name }

// InStateFor returns how long the machine has been in the current state.
func (m *Machine) InStateFor(now int64) int64 { return now - m.enteredAt }

// Run consumes at most one event. With no event pending it checks the
// state timeout, then falls back to the default action. Returns true when
// an event was consumed.
func (m *Machine) Run(now int64) bool {
	st := &m.states[m.current]
	ev, ok := m.events.Dequeue()
	if !ok {
		if st.TimeoutMS > 0 && now-m.enteredAt >= st.TimeoutMS {
			ev, ok = EventTimeout, true
		}
	}
	if !ok {
		if st.DefaultAction != nil {
			st.DefaultAction(now)
		}
		return false
	}
	for i := range st.Transitions {
		tr := &st.Transitions[i]
		if tr.Event != ev {
			continue
		}
		if tr.Guard != nil && !tr.Guard() {
			continue
		}
		if tr.Action != nil {
			tr.Action(now)
		}
		m.switchTo(tr.Next, now)
		return true
	}
	// Unmatched events are dropped; that is the declarative contract.
	return true
}

func (m *Machine) switchTo(next int, now int64) {
	from := m.current
	m.current = next
	m.enteredAt = now
	if m.observer != nil && from != next {
		m.observer(from, next, now)
	}
}

// Force jumps to a state without an event. Reserved for drain/reset paths.
func (m *Machine) Force(next int, now int64) { m.switchTo(next, now) }
