// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package concurrency

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestByteRingInitRejectsNonPowerOfTwo(t *testing.T) {
	var r ByteRing
	if err := r.Init(make([]byte, 48)); err == nil {
		t.Fatal("expected rejection of non-power-of-two storage")
	}
	if err := r.Init(nil); err == nil {
		t.Fatal("expected rejection of empty storage")
	}
	if err := r.Init(make([]byte, 64)); err != nil {
		t.Fatalf("power-of-two init failed: %v", err)
	}
}

func TestByteRingWrapPreservesOrder(t *testing.T) {
	var r ByteRing
	if err := r.Init(make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	// Move the cursors near the wrap point.
	if n := r.Write([]byte{1, 2, 3, 4, 5, 6}); n != 6 {
		t.Fatalf("write = %d", n)
	}
	var sink [6]byte
	if n := r.Read(sink[:]); n != 6 {
		t.Fatalf("read = %d", n)
	}
	// This write spans the wrap.
	payload := []byte{10, 11, 12, 13, 14}
	if n := r.Write(payload); n != 5 {
		t.Fatalf("wrap write = %d", n)
	}
	out := make([]byte, 5)
	if n := r.Read(out); n != 5 {
		t.Fatalf("wrap read = %d", n)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("wrap order broken: % x", out)
	}
}

func TestByteRingPushPopAndQueries(t *testing.T) {
	var r ByteRing
	if err := r.Init(make([]byte, 4)); err != nil {
		t.Fatal(err)
	}
	if !r.IsEmpty() || r.IsFull() || r.Capacity() != 4 {
		t.Fatal("fresh ring queries wrong")
	}
	for i := 0; i < 4; i++ {
		if !r.Push(byte(i)) {
			t.Fatalf("push %d refused", i)
		}
	}
	if r.Push(9) {
		t.Fatal("push into full ring accepted")
	}
	if !r.IsFull() || r.Free() != 0 || r.Size() != 4 {
		t.Fatal("full ring queries wrong")
	}
	for i := 0; i < 4; i++ {
		b, ok := r.Pop()
		if !ok || b != byte(i) {
			t.Fatalf("pop %d = %d, %v", i, b, ok)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("pop from empty ring succeeded")
	}
	r.Push(1)
	r.Reset()
	if !r.IsEmpty() {
		t.Fatal("reset did not empty the ring")
	}
}

// Randomized operations against a slice model; checks that size stays
// within capacity and bytes come back in FIFO order.
func TestByteRingPropertyBased(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var r ByteRing
	if err := r.Init(make([]byte, 64)); err != nil {
		t.Fatal(err)
	}
	var model []byte
	var next byte
	for i := 0; i < 20000; i++ {
		if rng.Intn(2) == 0 {
			chunk := make([]byte, rng.Intn(9))
			for j := range chunk {
				chunk[j] = next
				next++
			}
			n := r.Write(chunk)
			model = append(model, chunk[:n]...)
		} else {
			out := make([]byte, rng.Intn(9))
			n := r.Read(out)
			if n > len(model) {
				t.Fatalf("read %d with only %d modeled", n, len(model))
			}
			if !bytes.Equal(out[:n], model[:n]) {
				t.Fatalf("order mismatch at op %d", i)
			}
			model = model[n:]
		}
		if r.Size() != len(model) {
			t.Fatalf("size %d, model %d", r.Size(), len(model))
		}
		if r.Size() < 0 || r.Size() > 64 {
			t.Fatalf("size out of bounds: %d", r.Size())
		}
	}
}

func TestByteRingSkipAndSnapshot(t *testing.T) {
	var r ByteRing
	if err := r.Init(make([]byte, 16)); err != nil {
		t.Fatal(err)
	}
	r.Write([]byte{1, 2, 3, 4, 5})
	if n := r.Skip(2); n != 2 {
		t.Fatalf("skip = %d", n)
	}
	base, head, size := r.Snapshot()
	if size != 3 || base[head&uint64(len(base)-1)] != 3 {
		t.Fatalf("snapshot head=%d size=%d", head, size)
	}
	if n := r.Skip(10); n != 3 {
		t.Fatalf("over-skip = %d", n)
	}
}
