// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package fsm

import "testing"

const (
	stOff = iota
	stOn
)

const (
	evToggle Event = iota
	evNoop
)

func TestMachineTransitionsAndActions(t *testing.T) {
	var fired int
	var defaults int
	states := []State{
		{
			Name: "off", ID: stOff,
			DefaultAction: func(int64) { defaults++ },
			Transitions: []Transition{
				{Event: evToggle, Next: stOn, Action: func(int64) { fired++ }},
			},
		},
		{
			Name: "on", ID: stOn,
			Transitions: []Transition{
				{Event: evToggle, Next: stOff},
			},
		},
	}
	m, err := New(states, stOff, 8)
	if err != nil {
		t.Fatal(err)
	}
	m.Run(0)
	if defaults != 1 {
		t.Fatal("default action did not run on empty queue")
	}
	if !m.Post(evToggle) {
		t.Fatal("post refused")
	}
	if !m.Run(1) || m.Current() != stOn || fired != 1 {
		t.Fatalf("transition failed: state=%d fired=%d", m.Current(), fired)
	}
	if m.StateName() != "on" {
		t.Fatalf("name = %q", m.StateName())
	}
	// Unmatched events are consumed and dropped.
	m.Post(evNoop)
	if !m.Run(2) || m.Current() != stOn {
		t.Fatal("unmatched event changed state")
	}
}

func TestMachineGuards(t *testing.T) {
	allow := false
	states := []State{
		{
			Name: "off", ID: stOff,
			Transitions: []Transition{
				{Event: evToggle, Next: stOn, Guard: func() bool { return allow }},
			},
		},
		{Name: "on", ID: stOn},
	}
	m, err := New(states, stOff, 8)
	if err != nil {
		t.Fatal(err)
	}
	m.Post(evToggle)
	m.Run(0)
	if m.Current() != stOff {
		t.Fatal("guarded transition fired")
	}
	allow = true
	m.Post(evToggle)
	m.Run(1)
	if m.Current() != stOn {
		t.Fatal("allowed transition did not fire")
	}
}

func TestMachineStateTimeout(t *testing.T) {
	states := []State{
		{
			Name: "off", ID: stOff,
			TimeoutMS: 50,
			Transitions: []Transition{
				{Event: EventTimeout, Next: stOn},
			},
		},
		{Name: "on", ID: stOn},
	}
	m, err := New(states, stOff, 8)
	if err != nil {
		t.Fatal(err)
	}
	m.Run(49)
	if m.Current() != stOff {
		t.Fatal("timeout fired early")
	}
	m.Run(50)
	if m.Current() != stOn {
		t.Fatal("timeout did not fire")
	}
}

func TestMachineObserverAndPendingCount(t *testing.T) {
	states := []State{
		{Name: "off", ID: stOff, Transitions: []Transition{{Event: evToggle, Next: stOn}}},
		{Name: "on", ID: stOn},
	}
	m, err := New(states, stOff, 8)
	if err != nil {
		t.Fatal(err)
	}
	var entered []int
	m.SetObserver(func(_, to int, _ int64) { entered = append(entered, to) })
	m.Post(evToggle)
	if m.Pending() != 1 {
		t.Fatalf("pending = %d", m.Pending())
	}
	m.Run(5)
	if len(entered) != 1 || entered[0] != stOn {
		t.Fatalf("observer = %v", entered)
	}
	if m.InStateFor(12) != 7 {
		t.Fatalf("in-state-for = %d", m.InStateFor(12))
	}
}

func TestMachineRejectsBadTables(t *testing.T) {
	if _, err := New([]State{{Name: "x", ID: 1}}, 0, 8); err == nil {
		t.Fatal("misnumbered table accepted")
	}
	if _, err := New([]State{{Name: "x", ID: 0}}, 3, 8); err == nil {
		t.Fatal("bad initial state accepted")
	}
	if _, err := New([]State{{Name: "x", ID: 0}}, 0, 3); err == nil {
		t.Fatal("bad ring depth accepted")
	}
}
