// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package concurrency

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorRunsInSubmissionOrder(t *testing.T) {
	e := NewExecutor()
	const n = 1000
	var order [n]int32
	var cursor int32
	for i := 0; i < n; i++ {
		i := i
		if err := e.Submit(func() {
			order[atomic.AddInt32(&cursor, 1)-1] = int32(i)
		}); err != nil {
			t.Fatal(err)
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&cursor) < n {
		if time.Now().After(deadline) {
			t.Fatalf("executor stalled at %d", cursor)
		}
		time.Sleep(time.Millisecond)
	}
	for i := 0; i < n; i++ {
		if order[i] != int32(i) {
			t.Fatalf("completion %d ran as %d", i, order[i])
		}
	}
	e.Close()
	if err := e.Submit(func() {}); err != ErrExecutorClosed {
		t.Fatalf("submit after close = %v", err)
	}
}
