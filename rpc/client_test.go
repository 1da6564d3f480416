// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/engineclient/rpcsession/internal/jsonrpc"
	"github.com/engineclient/rpcsession/internal/testtransport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestClient(t *testing.T) (*Client, *testtransport.FakeSocket) {
	t.Helper()
	socket := &testtransport.FakeSocket{}
	c := New(testtransport.NewFactory(socket), "ws://engine.example/session", nil)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return c, socket
}

func TestClientSendAssignsIncreasingIDs(t *testing.T) {
	c, socket := openTestClient(t)

	fut1, err := c.Send(context.Background(), &jsonrpc.Request{Method: "A", Handle: -1})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	fut2, err := c.Send(context.Background(), &jsonrpc.Request{Method: "B", Handle: -1})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if fut1.RequestID != 1 || fut2.RequestID != 2 {
		t.Fatalf("request ids = %d, %d, want 1, 2", fut1.RequestID, fut2.RequestID)
	}
	if len(socket.Sent()) != 2 {
		t.Fatalf("socket received %d frames, want 2", len(socket.Sent()))
	}

	socket.Deliver(`{"id":1,"result":{"ok":true}}`)
	resp, err := fut1.Get(context.Background())
	if err != nil {
		t.Fatalf("fut1.Get() error = %v", err)
	}
	if string(resp.Result) != `{"ok":true}` {
		t.Fatalf("fut1 result = %s, want {\"ok\":true}", resp.Result)
	}

	if fut2.Done() {
		t.Fatal("fut2 settled before its response arrived")
	}
	socket.Deliver(`{"id":2,"result":{"ok":false}}`)
	resp2, err := fut2.Get(context.Background())
	if err != nil {
		t.Fatalf("fut2.Get() error = %v", err)
	}
	if string(resp2.Result) != `{"ok":false}` {
		t.Fatalf("fut2 result = %s, want {\"ok\":false}", resp2.Result)
	}
}

func TestClientNotificationRouting(t *testing.T) {
	c, socket := openTestClient(t)

	var got *jsonrpc.Notification
	c.OnNotification(func(n *jsonrpc.Notification) { got = n })

	socket.Deliver(`{"method":"tick","params":{"n":1}}`)

	if got == nil || got.Method != "tick" {
		t.Fatalf("notification = %+v, want method tick", got)
	}
}

func TestClientResponseHookRunsBeforeResolve(t *testing.T) {
	c, socket := openTestClient(t)

	var order []string
	c.SetResponseHook(func(*jsonrpc.Response) { order = append(order, "hook") })

	fut, err := c.Send(context.Background(), &jsonrpc.Request{Method: "A", Handle: -1})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	socket.Deliver(`{"id":1,"result":{}}`)

	if _, err := fut.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	order = append(order, "resolved")

	if len(order) != 2 || order[0] != "hook" || order[1] != "resolved" {
		t.Fatalf("order = %v, want [hook resolved]", order)
	}
}

func TestClientCloseRejectsOutstanding(t *testing.T) {
	c, _ := openTestClient(t)

	fut, err := c.Send(context.Background(), &jsonrpc.Request{Method: "A", Handle: -1})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if err := c.Close(1000, "bye"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err = fut.Get(context.Background())
	var closedErr *ClosedError
	if !errors.As(err, &closedErr) {
		t.Fatalf("fut.Get() error = %v, want *ClosedError", err)
	}

	if _, err := c.Send(context.Background(), &jsonrpc.Request{Method: "B", Handle: -1}); err == nil {
		t.Fatal("Send() after Close() error = nil, want non-nil")
	}
}

func TestClientClosedTopicFiresOnPeerClose(t *testing.T) {
	c, socket := openTestClient(t)

	done := make(chan CloseEvent, 1)
	c.OnClosed(func(evt CloseEvent) { done <- evt })

	socket.PeerClose(4000, "suspend")

	select {
	case evt := <-done:
		if evt.Code != 4000 || evt.Reason != "suspend" {
			t.Fatalf("CloseEvent = %+v, want code 4000 reason suspend", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for closed topic")
	}
}
