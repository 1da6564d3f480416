// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package future provides a promise-like handle for an asynchronous RPC
// result. It exists to carry the assigned request id alongside the
// eventual value, since Go has no promise-chain to decorate with a
// property the way the source library does (see design notes on
// promise-chain decoration).
package future

import "context"

// Future is a single-value, single-producer result cell. RequestID is set
// synchronously at construction time so a caller can read it before the
// value resolves.
type Future[T any] struct {
	RequestID int64

	done chan struct{}
	val  T
	err  error
}

// New creates a Future for the given request id. Resolve or Reject must be
// called exactly once.
func New[T any](requestID int64) *Future[T] {
	return &Future[T]{
		RequestID: requestID,
		done:      make(chan struct{}),
	}
}

// Resolve settles the future with a value. Subsequent calls are no-ops.
func (f *Future[T]) Resolve(val T) {
	select {
	case <-f.done:
		return
	default:
	}
	f.val = val
	close(f.done)
}

// Reject settles the future with an error. Subsequent calls are no-ops.
func (f *Future[T]) Reject(err error) {
	select {
	case <-f.done:
		return
	default:
	}
	f.err = err
	close(f.done)
}

// Get blocks until the future settles or ctx ends, whichever comes first.
// A context cancellation does not settle the future itself -- the
// producer may still resolve or reject it later; Get simply stops
// waiting.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done reports whether the future has settled.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
