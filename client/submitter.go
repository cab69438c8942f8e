// File: client/submitter.go
// Package client implements cross-thread submission.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The poll loop owns the engine; other threads may only hand work over
// through an MPSC queue. Submission errors discovered at drain time are
// reported through the request's own callback, in-band.

package client

import (
	"github.com/momentics/hioload-modbus/api"
	"github.com/momentics/hioload-modbus/internal/concurrency"
)

// Submitter is the multi-producer handover queue for one client.
type Submitter struct {
	q *concurrency.MPSC[Request]
	c *Client
}

// NewSubmitter attaches an MPSC submission queue of the given power-of-two
// capacity to the client. Poll drains it automatically.
func (c *Client) NewSubmitter(capacity int) (*Submitter, error) {
	q, err := concurrency.NewMPSC[Request](capacity)
	if err != nil {
		return nil, err
	}
	s := &Submitter{q: q, c: c}
	c.submitter = s
	return s, nil
}

// Submit hands a request to the poll thread. Safe from any thread.
// Returns ErrNoResources when the handover queue is full.
func (s *Submitter) Submit(req Request) error {
	if !s.q.Enqueue(req) {
		return api.ErrNoResources
	}
	return nil
}

// HighWater returns the handover queue's peak occupancy.
func (s *Submitter) HighWater() int { return s.q.HighWater() }

// drain runs on the poll thread.
func (s *Submitter) drain() {
	for {
		req, ok := s.q.Dequeue()
		if !ok {
			return
		}
		if _, err := s.c.Submit(req); err != nil && req.Callback != nil {
			st := api.NewStatus(api.KindNoResources)
			if err == api.ErrInvalidArgument {
				st = api.NewStatus(api.KindInvalidArgument)
			} else if err == api.ErrInvalidRequest {
				st = api.NewStatus(api.KindInvalidRequest)
			}
			req.Callback(st, api.ADU{}, req.UserCtx)
		}
	}
}
