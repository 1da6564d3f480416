// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package rpc frames JSON-RPC requests and responses over a transport.Socket,
// assigns request ids, tracks outstanding requests, and routes incoming
// frames to either the waiting request or the notification channel.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/engineclient/rpcsession/internal/future"
	"github.com/engineclient/rpcsession/internal/jsonrpc"
	"github.com/engineclient/rpcsession/internal/pubsub"
	"github.com/engineclient/rpcsession/transport"
)

// ClosedError is returned to every outstanding request when the client is
// closed, and to any Send call made after closing.
type ClosedError struct{ Reason string }

func (e *ClosedError) Error() string { return fmt.Sprintf("rpc: closed: %s", e.Reason) }

// ProtocolError describes a malformed frame or a response for an unknown id.
// Client does not return it: handleMessage logs such frames and drops them.
type ProtocolError struct{ Detail string }

func (e *ProtocolError) Error() string { return fmt.Sprintf("rpc: protocol error: %s", e.Detail) }

// Client is a JSON-RPC client over a single socket connection. It is safe
// for concurrent use.
type Client struct {
	newSocket transport.Factory
	url       string
	log       *slog.Logger

	mu      sync.Mutex
	socket  transport.Socket
	nextID  int64
	pending map[int64]*future.Future[*jsonrpc.Response]
	closed  bool

	notifications *pubsub.Topic[*jsonrpc.Notification]
	socketErrors  *pubsub.Topic[error]
	closedTopic   *pubsub.Topic[CloseEvent]
	openedTopic   *pubsub.Topic[struct{}]

	responseHook func(*jsonrpc.Response)
}

// SetResponseHook registers fn to run synchronously on every response,
// before it is delivered to the waiting Send call. This is how the
// session layer applies side-band change/close handling ahead of
// resolving the caller's future, per the ordering guarantee that handle
// events are observable before any continuation of the response that
// carried them.
func (c *Client) SetResponseHook(fn func(*jsonrpc.Response)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseHook = fn
}

// CloseEvent describes why a Client's connection ended.
type CloseEvent struct {
	Code   int
	Reason string
}

// New constructs a Client bound to newSocket and url. The socket is not
// dialed until Open is called.
func New(newSocket transport.Factory, url string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		newSocket:     newSocket,
		url:           url,
		log:           log,
		pending:       make(map[int64]*future.Future[*jsonrpc.Response]),
		notifications: pubsub.New[*jsonrpc.Notification](),
		socketErrors:  pubsub.New[error](),
		closedTopic:   pubsub.New[CloseEvent](),
		openedTopic:   pubsub.New[struct{}](),
	}
}

// OnNotification subscribes to standalone notification frames.
func (c *Client) OnNotification(fn func(*jsonrpc.Notification)) (unsubscribe func()) {
	return c.notifications.Subscribe(fn)
}

// OnSocketError subscribes to socket-level errors.
func (c *Client) OnSocketError(fn func(error)) (unsubscribe func()) {
	return c.socketErrors.Subscribe(fn)
}

// OnClosed subscribes to the terminal close event.
func (c *Client) OnClosed(fn func(CloseEvent)) (unsubscribe func()) {
	return c.closedTopic.Subscribe(fn)
}

// OnOpened subscribes to the successful-open event.
func (c *Client) OnOpened(fn func()) (unsubscribe func()) {
	return c.openedTopic.Subscribe(func(struct{}) { fn() })
}

// Open dials the socket and resets the id counter to zero. It must
// complete before Send is called.
func (c *Client) Open(ctx context.Context) error {
	socket, err := c.newSocket(ctx, c.url)
	if err != nil {
		return fmt.Errorf("rpc: create socket: %w", err)
	}

	socket.OnMessage(c.handleMessage)
	socket.OnError(func(err error) {
		c.log.Warn("rpc socket error", "err", err)
		c.socketErrors.Publish(err)
	})
	socket.OnClose(func(code int, reason string) {
		c.handleSocketClosed(code, reason)
	})

	if err := socket.Open(ctx); err != nil {
		return fmt.Errorf("rpc: open socket: %w", err)
	}

	c.mu.Lock()
	c.socket = socket
	c.nextID = 0
	c.closed = false
	c.mu.Unlock()

	c.openedTopic.Publish(struct{}{})
	return nil
}

func (c *Client) handleMessage(text string) {
	resp, note, err := jsonrpc.Decode([]byte(text))
	if err != nil {
		c.log.Warn("rpc: dropping malformed frame", "err", err)
		return
	}
	if note != nil {
		c.notifications.Publish(note)
		return
	}

	c.mu.Lock()
	fut, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	hook := c.responseHook
	c.mu.Unlock()

	if !ok {
		c.log.Warn("rpc: response for unknown id", "id", resp.ID)
		return
	}

	// Run the side-band hook before resolving the future so observers see
	// handle:changed/handle:closed before any .then-style continuation of
	// this response.
	if hook != nil {
		hook(resp)
	}
	fut.Resolve(resp)
}

func (c *Client) handleSocketClosed(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]*future.Future[*jsonrpc.Response])
	c.socket = nil
	c.mu.Unlock()

	closeErr := &ClosedError{Reason: reason}
	for _, fut := range pending {
		fut.Reject(closeErr)
	}
	c.closedTopic.Publish(CloseEvent{Code: code, Reason: reason})
}

// Send assigns the next request id, mutates req.ID, writes the frame, and
// returns a future that resolves with the full response. The id is set
// before this call returns, so callers may read req.ID or fut.RequestID
// immediately.
func (c *Client) Send(ctx context.Context, req *jsonrpc.Request) (*future.Future[*jsonrpc.Response], error) {
	c.mu.Lock()
	if c.closed || c.socket == nil {
		c.mu.Unlock()
		return nil, &ClosedError{Reason: "no open connection"}
	}
	c.nextID++
	id := c.nextID
	req.ID = id
	req.JSONRPC = jsonrpc.Version
	socket := c.socket

	fut := future.New[*jsonrpc.Response](id)
	c.pending[id] = fut
	c.mu.Unlock()

	data, err := jsonrpc.Encode(req)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("rpc: encode request: %w", err)
	}

	if err := socket.Send(ctx, string(data)); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		fut.Reject(err)
		return fut, fmt.Errorf("rpc: send request: %w", err)
	}

	return fut, nil
}

// Close closes the socket, rejects every outstanding request, and emits
// the terminal close event.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	socket := c.socket
	alreadyClosed := c.closed
	c.mu.Unlock()

	if alreadyClosed {
		return nil
	}
	if socket == nil {
		c.handleSocketClosed(code, reason)
		return nil
	}
	return socket.Close(code, reason)
}
