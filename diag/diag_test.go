// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package diag

import (
	"bytes"
	"testing"

	"github.com/momentics/hioload-modbus/api"
)

func TestCountersHistogram(t *testing.T) {
	var c Counters
	c.CountFC(0x03)
	c.CountFC(0x03)
	c.CountFC(0x10)
	c.CountStatus(api.OK)
	c.CountStatus(api.NewException(api.ExIllegalDataAddress))
	if c.FC(0x03) != 2 || c.FC(0x10) != 1 || c.FC(0x06) != 0 {
		t.Fatal("fc histogram wrong")
	}
	if c.Status(api.OK.Slot()) != 1 {
		t.Fatal("ok slot wrong")
	}
	if c.Status(api.NewException(api.ExIllegalDataAddress).Slot()) != 1 {
		t.Fatal("exception slot wrong")
	}
	if c.Status(-1) != 0 || c.Status(api.NumStatusSlots) != 0 {
		t.Fatal("out-of-range slots must read zero")
	}
	c.Reset()
	if c.FC(0x03) != 0 || c.Status(api.OK.Slot()) != 0 {
		t.Fatal("reset incomplete")
	}
}

func TestStatusTaxonomy(t *testing.T) {
	if !api.OK.IsOK() || api.OK.Name() != "ok" {
		t.Fatal("zero value must be success")
	}
	st := api.NewStatus(api.KindTimeout)
	if st.IsOK() || st.Name() != "timeout" || st.Err() != api.ErrTimeout {
		t.Fatalf("timeout status: %s / %v", st.Name(), st.Err())
	}
	ex := api.NewException(api.ExServerBusy)
	if !ex.IsException() || ex.Exception() != api.ExServerBusy {
		t.Fatal("exception status wrong")
	}
	if ex.Name() != "server-device-busy" {
		t.Fatalf("exception name = %q", ex.Name())
	}
	// Unknown exception codes collapse to the other slot.
	if api.NewException(0x55).Slot() != api.NewStatus(api.KindOther).Slot() {
		t.Fatal("unknown exception did not collapse")
	}
	// Slots are dense and unique for the defined set.
	seen := map[int]bool{}
	for k := api.KindOK; k < api.KindException; k++ {
		slot := api.NewStatus(k).Slot()
		if seen[slot] {
			t.Fatalf("duplicate slot %d", slot)
		}
		seen[slot] = true
	}
	for _, code := range []uint8{1, 2, 3, 4, 5, 6, 7, 8, 0x0A, 0x0B} {
		slot := api.NewException(code).Slot()
		if slot < 0 || slot >= api.NumStatusSlots || seen[slot] {
			t.Fatalf("exception %#x slot %d collides", code, slot)
		}
		seen[slot] = true
	}
}

func TestEventRingCapture(t *testing.T) {
	r := NewRing(4)
	for i := 0; i < 6; i++ {
		r.Capture(api.Event{TID: uint16(i)})
	}
	if r.Len() != 4 {
		t.Fatalf("len = %d", r.Len())
	}
	out := make([]api.Event, 8)
	n := r.Snapshot(out)
	if n != 4 {
		t.Fatalf("snapshot = %d", n)
	}
	for i := 0; i < 4; i++ {
		if out[i].TID != uint16(i+2) {
			t.Fatalf("event %d tid %d", i, out[i].TID)
		}
	}
	// Depth zero disables capture without breaking Emit.
	var sink Sink
	sink.Ring = NewRing(0)
	sink.Emit(api.Event{})
	if sink.Ring.Len() != 0 {
		t.Fatal("disabled ring captured")
	}
}

func TestHexTracer(t *testing.T) {
	var dir api.TraceDirection
	var line []byte
	tr := NewHexTracer(func(d api.TraceDirection, l []byte) {
		dir = d
		line = append(line[:0], l...)
	})
	tr.Trace(api.TraceTX, api.ADU{Unit: 0x11, Function: 0x03, Payload: []byte{0x00, 0x6B}})
	if dir != api.TraceTX {
		t.Fatal("direction lost")
	}
	if !bytes.Equal(line, []byte("11 03 006b")) {
		t.Fatalf("line = %q", line)
	}
	var disabled *HexTracer
	if disabled.Enabled() {
		t.Fatal("nil tracer enabled")
	}
	disabled.Trace(api.TraceRX, api.ADU{}) // must be a safe no-op
}
