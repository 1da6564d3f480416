// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"log/slog"

	"github.com/engineclient/rpcsession/internal/jsonrpc"
	"github.com/engineclient/rpcsession/proxy"
	"github.com/engineclient/rpcsession/transport"
)

// RequestInterceptor transforms an outgoing request before it is sent. A
// non-nil error short-circuits the chain and fails the Send call.
type RequestInterceptor func(ctx context.Context, s *Session, req *jsonrpc.Request) (*jsonrpc.Request, error)

// ResponseInterceptor transforms a response before its result is delivered
// to the caller. A non-nil error short-circuits the chain and fails the
// Send call with that error.
type ResponseInterceptor func(ctx context.Context, s *Session, req *jsonrpc.Request, resp *jsonrpc.Response) (*jsonrpc.Response, error)

// Options configures a Session.
type Options struct {
	// URL is the socket endpoint.
	URL string

	// CreateSocket overrides the socket factory. If nil, a
	// transport.WebSocketFactory is used.
	CreateSocket transport.Factory

	// SchemaLookup resolves an object type name to its remote method
	// schema. Required: the core treats schema discovery as an external
	// collaborator and does not default it.
	SchemaLookup proxy.SchemaLookup

	// ProtocolDelta is the global delta-encoding default (protocol.delta).
	// Nil defaults to true; an explicit Delta value on a request always
	// wins over this default, including an explicit false.
	ProtocolDelta *bool

	// SuspendOnClose treats an unsolicited close (any close code other
	// than the user-initiated code) as a suspend instead of a terminal
	// close.
	SuspendOnClose bool

	// RequestInterceptors / ResponseInterceptors are appended after the
	// session's own mandatory steps (see Send).
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor

	// Logger receives structured session lifecycle and transport logs. If
	// nil, slog.Default() is used.
	Logger *slog.Logger
}

func (o *Options) socketFactory() transport.Factory {
	if o.CreateSocket != nil {
		return o.CreateSocket
	}
	wsf := &transport.WebSocketFactory{}
	return wsf.New()
}

func (o *Options) protocolDelta() bool {
	if o.ProtocolDelta == nil {
		return true
	}
	return *o.ProtocolDelta
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
