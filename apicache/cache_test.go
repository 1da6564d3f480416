// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package apicache

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/engineclient/rpcsession/internal/jsonrpc"
)

func TestCacheAddGetRemove(t *testing.T) {
	c := New()
	c.Add(1, &Entry{Type: "Doc", ID: "doc-1", API: "api-1"})

	if got := c.GetAPI(1); got != "api-1" {
		t.Fatalf("GetAPI(1) = %v, want api-1", got)
	}
	if got := c.GetAPI(2); got != nil {
		t.Fatalf("GetAPI(2) = %v, want nil", got)
	}

	c.Remove(1)
	if got := c.GetAPI(1); got != nil {
		t.Fatalf("GetAPI(1) after Remove = %v, want nil", got)
	}
}

func TestCacheInsertionOrder(t *testing.T) {
	c := New()
	c.Add(3, &Entry{API: "three"})
	c.Add(1, &Entry{API: "one"})
	c.Add(2, &Entry{API: "two"})

	want := []jsonrpc.Handle{3, 1, 2}
	if diff := cmp.Diff(want, c.Handles()); diff != "" {
		t.Fatalf("Handles() mismatch (-want +got):\n%s", diff)
	}

	wantAPIs := []any{"three", "one", "two"}
	if diff := cmp.Diff(wantAPIs, c.GetAPIs()); diff != "" {
		t.Fatalf("GetAPIs() mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheAddReplaceEmitsNoEvent(t *testing.T) {
	c := New()
	calls := 0
	c.OnChanged(1, func(jsonrpc.Handle) { calls++ })

	c.Add(1, &Entry{API: "v1"})
	c.Add(1, &Entry{API: "v2"}) // replace: no change event, no new order entry

	if calls != 0 {
		t.Fatalf("calls = %d, want 0 (Add never emits)", calls)
	}
	if got := c.GetAPI(1); got != "v2" {
		t.Fatalf("GetAPI(1) = %v, want v2", got)
	}
	if len(c.Handles()) != 1 {
		t.Fatalf("Handles() = %v, want exactly one entry", c.Handles())
	}
}

func TestCacheEmitChangedAndClosed(t *testing.T) {
	c := New()
	c.Add(1, &Entry{API: "v1"})

	var changed, closed int
	c.OnChanged(1, func(jsonrpc.Handle) { changed++ })
	c.OnClosed(1, func(jsonrpc.Handle) { closed++ })

	c.EmitChanged(1)
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if got := c.GetAPI(1); got != "v1" {
		t.Fatal("EmitChanged must not remove the entry")
	}

	c.EmitClosed(1)
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}
	if got := c.GetAPI(1); got != nil {
		t.Fatal("EmitClosed must remove the entry")
	}
}

func TestCachePatchee(t *testing.T) {
	c := New()
	c.Add(1, &Entry{API: "v1"})

	if _, ok := c.GetPatchee(1, "GetData"); ok {
		t.Fatal("GetPatchee found a value before any SetPatchee")
	}

	c.SetPatchee(1, "GetData", jsonrpc.RawMessage(`{"n":1}`))
	got, ok := c.GetPatchee(1, "GetData")
	if !ok {
		t.Fatal("GetPatchee() ok = false, want true")
	}
	if string(got) != `{"n":1}` {
		t.Fatalf("GetPatchee() = %s, want {\"n\":1}", got)
	}
}

func TestCacheClearEmitsCloseForEveryHandle(t *testing.T) {
	c := New()
	c.Add(1, &Entry{API: "v1"})
	c.Add(2, &Entry{API: "v2"})

	var closedHandles []jsonrpc.Handle
	c.OnClosed(1, func(h jsonrpc.Handle) { closedHandles = append(closedHandles, h) })
	c.OnClosed(2, func(h jsonrpc.Handle) { closedHandles = append(closedHandles, h) })

	c.Clear()

	if len(closedHandles) != 2 {
		t.Fatalf("closedHandles = %v, want 2 entries", closedHandles)
	}
	if len(c.Handles()) != 0 {
		t.Fatalf("Handles() after Clear = %v, want empty", c.Handles())
	}
}
