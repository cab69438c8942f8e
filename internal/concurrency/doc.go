// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package concurrency implements the zero-allocation queue primitives the
// engines are built on: a single-producer/single-consumer byte ring, a
// SPSC slot queue and a multi-producer/single-consumer slot queue. It also
// holds a deferred-completion executor, whose unbounded queue allocates as
// it grows.
//
// All ring and slot-queue cursors are monotonic uint64 values masked into
// power-of-two storage. Publish sides use release ordering, observe sides
// use acquire, per the atomix memory model. None of the ring or slot-queue
// operations allocate.
package concurrency
