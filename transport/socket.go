// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport adapts a duplex WebSocket connection to the narrow
// Socket interface the RPC layer needs: open, close, send, and the
// message/open/close/error events. The socket owns no JSON-RPC knowledge;
// framing lives one layer up in package rpc.
package transport

import "context"

// Socket is a thin duplex message channel. Implementations must be safe
// for concurrent Send calls from one goroutine while a separate goroutine
// drives reads and delivers them via the registered handlers.
type Socket interface {
	// Open establishes the connection. It must be called before Send.
	Open(ctx context.Context) error

	// Close tears down the connection with the given close code and
	// reason. Code 1000 (normal closure) signals a user-initiated close;
	// any other code signals an unsolicited close.
	Close(code int, reason string) error

	// Send writes a single text message.
	Send(ctx context.Context, text string) error

	// OnMessage registers the handler invoked for each inbound text
	// message. Only one handler is retained; registering again replaces
	// it.
	OnMessage(func(text string))

	// OnOpen registers the handler invoked once the connection is live.
	OnOpen(func())

	// OnClose registers the handler invoked when the connection ends,
	// whether by local Close or by the peer.
	OnClose(func(code int, reason string))

	// OnError registers the handler invoked on a socket-level error that
	// does not by itself imply the connection is closed.
	OnError(func(err error))
}

// Factory constructs a new, unopened Socket for the given URL. Callers
// call Open on the result.
type Factory func(ctx context.Context, url string) (Socket, error)
