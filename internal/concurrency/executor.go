// File: internal/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deferred-completion executor. Engines configured for asynchronous
// callback delivery hand completion thunks to a single worker so user
// code never runs inside Poll. A single worker preserves completion
// order, which the delivery-ordering guarantee depends on.

package concurrency

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = errors.New("executor is closed")

// CompletionFunc is one queued completion thunk.
type CompletionFunc func()

// Executor drains completion thunks on a dedicated goroutine.
type Executor struct {
	mu    sync.Mutex
	queue *queue.Queue
	wake  chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

// NewExecutor starts the worker.
func NewExecutor() *Executor {
	e := &Executor{
		queue: queue.New(),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit enqueues a completion for ordered delivery.
func (e *Executor) Submit(fn CompletionFunc) error {
	select {
	case <-e.stop:
		return ErrExecutorClosed
	default:
	}
	e.mu.Lock()
	e.queue.Add(fn)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the worker after the queue drains.
func (e *Executor) Close() {
	select {
	case <-e.stop:
		return
	default:
		close(e.stop)
	}
	<-e.done
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		fn := e.pop()
		if fn != nil {
			fn()
			continue
		}
		select {
		case <-e.wake:
		case <-e.stop:
			// Final drain.
			for fn := e.pop(); fn != nil; fn = e.pop() {
				fn()
			}
			return
		}
	}
}

func (e *Executor) pop() CompletionFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue.Length() == 0 {
		return nil
	}
	return e.queue.Remove().(CompletionFunc)
}
