// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package suspend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/engineclient/rpcsession/apicache"
	"github.com/engineclient/rpcsession/internal/jsonrpc"
)

type fakeSocket struct {
	openCalls  int
	openErr    error
	closeCalls int
}

func (s *fakeSocket) Open(ctx context.Context) error {
	s.openCalls++
	return s.openErr
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.closeCalls++
	return nil
}

// fakeReattacher maps an object id to either a new handle, ErrObjectGone, or
// a transport-level error, scripted per test.
type fakeReattacher struct {
	reattachTo map[string]jsonrpc.Handle
	gone       map[string]bool
	failWith   map[string]error
}

func (r *fakeReattacher) Reattach(ctx context.Context, objectID string) (jsonrpc.Handle, error) {
	if err, ok := r.failWith[objectID]; ok {
		return 0, err
	}
	if r.gone[objectID] {
		return 0, fmt.Errorf("%w: %s", ErrObjectGone, objectID)
	}
	return r.reattachTo[objectID], nil
}

func newFixture() (*apicache.Cache, *fakeSocket, *fakeReattacher) {
	cache := apicache.New()
	cache.Add(jsonrpc.GlobalHandle, &apicache.Entry{ID: "global", API: "global-proxy"})
	return cache, &fakeSocket{}, &fakeReattacher{
		reattachTo: map[string]jsonrpc.Handle{},
		gone:       map[string]bool{},
		failWith:   map[string]error{},
	}
}

func TestSuspendAlwaysSucceeds(t *testing.T) {
	cache, socket, reattacher := newFixture()
	c := New(cache, socket, reattacher, nil)

	if err := c.Suspend(4000, "bye"); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	if c.State() != Suspended {
		t.Fatalf("State() = %v, want Suspended", c.State())
	}
	if socket.closeCalls != 1 {
		t.Fatalf("socket.Close called %d times, want 1", socket.closeCalls)
	}
}

type rebindable struct{ handle jsonrpc.Handle }

func (r *rebindable) Rebind(h jsonrpc.Handle) { r.handle = h }

func TestResumeHappyPathRebindsHandles(t *testing.T) {
	cache, socket, reattacher := newFixture()
	obj2 := &rebindable{handle: 2}
	obj3 := &rebindable{handle: 3}
	cache.Add(2, &apicache.Entry{ID: "doc-2", API: obj2})
	cache.Add(3, &apicache.Entry{ID: "doc-3", API: obj3})
	reattacher.reattachTo["doc-2"] = 22
	reattacher.reattachTo["doc-3"] = 33

	c := New(cache, socket, reattacher, nil)
	c.Suspend(4000, "bye")

	result, err := c.Resume(context.Background(), false)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if len(result.ClosedHandles) != 0 {
		t.Fatalf("ClosedHandles = %v, want empty", result.ClosedHandles)
	}
	if c.State() != Active {
		t.Fatalf("State() = %v, want Active", c.State())
	}
	if socket.openCalls != 1 {
		t.Fatalf("socket.Open called %d times, want 1", socket.openCalls)
	}

	if obj2.handle != 22 || obj3.handle != 33 {
		t.Fatalf("rebound handles = %d, %d, want 22, 33", obj2.handle, obj3.handle)
	}
	want := map[jsonrpc.Handle]bool{jsonrpc.GlobalHandle: true, 22: true, 33: true}
	for _, h := range cache.Handles() {
		if !want[h] {
			t.Fatalf("unexpected handle %d in cache after resume", h)
		}
		delete(want, h)
	}
	if len(want) != 0 {
		t.Fatalf("missing expected handles after resume: %v", want)
	}
}

func TestResumeDropsGoneObjectsWhenNotRequired(t *testing.T) {
	cache, socket, reattacher := newFixture()
	cache.Add(2, &apicache.Entry{ID: "doc-2", API: &rebindable{handle: 2}})
	cache.Add(3, &apicache.Entry{ID: "doc-3", API: &rebindable{handle: 3}})
	reattacher.reattachTo["doc-2"] = 2 // unchanged handle
	reattacher.gone["doc-3"] = true

	c := New(cache, socket, reattacher, nil)
	c.Suspend(4000, "bye")

	result, err := c.Resume(context.Background(), false)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if len(result.ClosedHandles) != 1 || result.ClosedHandles[0] != 3 {
		t.Fatalf("ClosedHandles = %v, want [3]", result.ClosedHandles)
	}
	if c.State() != Active {
		t.Fatalf("State() = %v, want Active despite a dropped handle", c.State())
	}
	if cache.GetAPI(3) != nil {
		t.Fatal("handle 3 still present in cache after being reported gone")
	}
}

func TestResumeOnlyIfAttachedAbortsOnAnyLoss(t *testing.T) {
	cache, socket, reattacher := newFixture()
	cache.Add(2, &apicache.Entry{ID: "doc-2", API: &rebindable{handle: 2}})
	cache.Add(3, &apicache.Entry{ID: "doc-3", API: &rebindable{handle: 3}})
	reattacher.gone["doc-3"] = true

	c := New(cache, socket, reattacher, nil)
	c.Suspend(4000, "bye")

	_, err := c.Resume(context.Background(), true)
	if err == nil {
		t.Fatal("Resume() error = nil, want a ReattachError")
	}
	var reattachErr *ReattachError
	if !errors.As(err, &reattachErr) {
		t.Fatalf("Resume() error = %v, want *ReattachError", err)
	}
	if c.State() != Suspended {
		t.Fatalf("State() = %v, want Suspended after an aborted resume", c.State())
	}
	// The cache must be left untouched by the aborted attempt.
	if cache.GetAPI(2) == nil || cache.GetAPI(3) == nil {
		t.Fatal("an aborted resume must not mutate the cache")
	}
}

func TestResumeTransportFailureReverts(t *testing.T) {
	cache, socket, reattacher := newFixture()
	cache.Add(2, &apicache.Entry{ID: "doc-2", API: &rebindable{handle: 2}})
	reattacher.failWith["doc-2"] = errors.New("connection reset")

	c := New(cache, socket, reattacher, nil)
	c.Suspend(4000, "bye")

	_, err := c.Resume(context.Background(), false)
	if err == nil {
		t.Fatal("Resume() error = nil, want a transport failure")
	}
	if c.State() != Suspended {
		t.Fatalf("State() = %v, want Suspended after transport failure", c.State())
	}
}
