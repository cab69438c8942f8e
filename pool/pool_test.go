// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package pool

import "testing"

type slot struct {
	payload [16]byte
	id      int
}

func TestPoolAcquireReleaseDiscipline(t *testing.T) {
	p := New[slot](4)
	var held []*slot
	for i := 0; i < 4; i++ {
		s := p.Acquire()
		if s == nil {
			t.Fatalf("acquire %d failed", i)
		}
		s.id = i
		held = append(held, s)
	}
	if p.Acquire() != nil {
		t.Fatal("acquire from exhausted pool succeeded")
	}
	st := p.Stats()
	if st.InUse != 4 || st.PeakInUse != 4 || st.TotalAcquired != 4 || st.FailedAcquires != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if !p.HasLeaks() {
		t.Fatal("leak heuristic should trip at full occupancy")
	}
	for _, s := range held {
		p.Release(s)
	}
	st = p.Stats()
	if st.InUse != 0 || st.TotalReleased != 4 {
		t.Fatalf("stats after release = %+v", st)
	}
	if st.InUse != int(st.TotalAcquired-st.TotalReleased) {
		t.Fatal("in-use / acquired / released inconsistent")
	}
	// Slots are reusable.
	if p.Acquire() == nil {
		t.Fatal("reacquire failed")
	}
}

func TestPoolReleaseForeignPointerPanics(t *testing.T) {
	p := New[slot](2)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on foreign release")
		}
	}()
	p.Release(&slot{})
}

func TestPoolDoubleReleasePanics(t *testing.T) {
	p := New[slot](2)
	s := p.Acquire()
	p.Release(s)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double release")
		}
	}()
	p.Release(s)
}

func TestPoolIndexing(t *testing.T) {
	p := New[slot](3)
	a := p.Acquire()
	idx := p.IndexOf(a)
	if idx < 0 || p.At(idx) != a {
		t.Fatalf("index round-trip failed: %d", idx)
	}
	if !p.InUse(idx) {
		t.Fatal("acquired slot not reported in use")
	}
	p.Release(a)
	if p.InUse(idx) {
		t.Fatal("released slot reported in use")
	}
}
