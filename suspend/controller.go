// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package suspend orchestrates dropping the transport without losing the
// set of outstanding proxies, and, on resume, reconciling each cached
// handle against the server: still valid, reissued under a new handle, or
// permanently gone.
package suspend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/engineclient/rpcsession/apicache"
	"github.com/engineclient/rpcsession/internal/jsonrpc"
)

// State is the suspend/resume controller's state.
type State int

const (
	Active State = iota
	Suspending
	Suspended
	Resuming
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Suspending:
		return "SUSPENDING"
	case Suspended:
		return "SUSPENDED"
	case Resuming:
		return "RESUMING"
	default:
		return "UNKNOWN"
	}
}

// ErrObjectGone is returned (wrapped) by a Reattacher when the named
// object no longer exists on the server.
var ErrObjectGone = errors.New("suspend: object no longer exists")

// ReattachError is raised when an object could not be recovered during
// resume and onlyIfAttached was requested.
type ReattachError struct {
	Handle jsonrpc.Handle
	ID     string
	Reason error
}

func (e *ReattachError) Error() string {
	return fmt.Sprintf("suspend: reattach handle %d (id %s) failed: %v", e.Handle, e.ID, e.Reason)
}

func (e *ReattachError) Unwrap() error { return e.Reason }

// Reattacher resolves an object's stable ID to its current server handle,
// via a GetObject-equivalent call against the global handle. It returns an
// error wrapping ErrObjectGone when the object is permanently gone, and
// any other error for a transport-level failure.
type Reattacher interface {
	Reattach(ctx context.Context, objectID string) (jsonrpc.Handle, error)
}

// Socket is the narrow subset of the RPC transport the controller drives
// directly: tear down for suspend, re-establish for resume.
type Socket interface {
	Close(code int, reason string) error
	Open(ctx context.Context) error
}

// ResumeResult reports the outcome of a successful Resume call.
type ResumeResult struct {
	// ClosedHandles lists handles that could not be reattached and were
	// therefore removed from the cache.
	ClosedHandles []jsonrpc.Handle
}

// Controller drives the suspend/resume state machine over a Cache and a
// Socket.
type Controller struct {
	cache      *apicache.Cache
	socket     Socket
	reattacher Reattacher
	log        *slog.Logger

	mu    sync.Mutex
	state State
}

// New constructs a Controller in the Active state.
func New(cache *apicache.Cache, socket Socket, reattacher Reattacher, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cache:      cache,
		socket:     socket,
		reattacher: reattacher,
		log:        log,
		state:      Active,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Suspend closes the socket cleanly and transitions to Suspended,
// retaining every cache entry untouched. Suspend-while-open always
// succeeds.
func (c *Controller) Suspend(closeCode int, closeReason string) error {
	c.mu.Lock()
	c.state = Suspending
	c.mu.Unlock()

	if err := c.socket.Close(closeCode, closeReason); err != nil {
		c.log.Warn("suspend: socket close returned an error, continuing", "err", err)
	}

	c.mu.Lock()
	c.state = Suspended
	c.mu.Unlock()
	return nil
}

// Resume re-opens the socket and reattaches every cached positive handle.
// When onlyIfAttached is true, any single reattach failure aborts the
// whole resume and reverts to Suspended. When false, objects that are
// confirmed gone are dropped from the cache and reported in
// ResumeResult.ClosedHandles, while the resume as a whole still succeeds.
func (c *Controller) Resume(ctx context.Context, onlyIfAttached bool) (*ResumeResult, error) {
	c.mu.Lock()
	c.state = Resuming
	c.mu.Unlock()

	if err := c.socket.Open(ctx); err != nil {
		c.revertToSuspended()
		return nil, fmt.Errorf("suspend: resume failed to reopen socket: %w", err)
	}

	result := &ResumeResult{}
	type rebind struct {
		old, new jsonrpc.Handle
	}
	var rebinds []rebind

	for _, handle := range c.cache.Handles() {
		if handle == jsonrpc.GlobalHandle {
			continue
		}
		entry := c.cache.GetEntry(handle)
		if entry == nil {
			continue
		}

		newHandle, err := c.reattacher.Reattach(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, ErrObjectGone) {
				if onlyIfAttached {
					c.revertToSuspended()
					return nil, &ReattachError{Handle: handle, ID: entry.ID, Reason: err}
				}
				c.cache.EmitClosed(handle)
				result.ClosedHandles = append(result.ClosedHandles, handle)
				continue
			}
			// Transport-level failure: abort resume entirely.
			c.revertToSuspended()
			return nil, fmt.Errorf("suspend: resume aborted, transport error reattaching handle %d: %w", handle, err)
		}

		if newHandle != handle {
			rebinds = append(rebinds, rebind{old: handle, new: newHandle})
		}
	}

	for _, r := range rebinds {
		entry := c.cache.GetEntry(r.old)
		if entry == nil {
			continue
		}
		c.cache.Remove(r.old)
		entry.Handle = r.new
		if rebindable, ok := entry.API.(interface{ Rebind(jsonrpc.Handle) }); ok {
			rebindable.Rebind(r.new)
		}
		c.cache.Add(r.new, entry)
	}

	c.mu.Lock()
	c.state = Active
	c.mu.Unlock()
	return result, nil
}

func (c *Controller) revertToSuspended() {
	c.mu.Lock()
	c.state = Suspended
	c.mu.Unlock()
}

// ForceSuspended marks the controller Suspended without attempting to
// close the socket, for use when the caller already knows the underlying
// connection is gone (an unsolicited close the session has decided to
// treat as a suspend rather than a terminal close).
func (c *Controller) ForceSuspended() {
	c.mu.Lock()
	c.state = Suspended
	c.mu.Unlock()
}
