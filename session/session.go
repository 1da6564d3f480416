// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package session is the top-level state machine: it owns the RPC
// transport, the API cache, and the suspend/resume controller, applies the
// request/response interceptor chains, and re-emits server notifications
// and side-band handle events to callers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/engineclient/rpcsession/apicache"
	"github.com/engineclient/rpcsession/internal/future"
	"github.com/engineclient/rpcsession/internal/jsonrpc"
	"github.com/engineclient/rpcsession/internal/pubsub"
	"github.com/engineclient/rpcsession/proxy"
	"github.com/engineclient/rpcsession/rpc"
	"github.com/engineclient/rpcsession/suspend"
)

// State is the Session's state, per the source's open -> opened ->
// (suspended <-> resumed)* -> closed lifecycle.
type State int

const (
	Created State = iota
	Opening
	Opened
	Suspending
	Suspended
	Resuming
	Closing
	Closed
)

func (st State) String() string {
	switch st {
	case Created:
		return "CREATED"
	case Opening:
		return "OPENING"
	case Opened:
		return "OPENED"
	case Suspending:
		return "SUSPENDING"
	case Suspended:
		return "SUSPENDED"
	case Resuming:
		return "RESUMING"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// GlobalObjectType is the object type used to generate the always-present
// global handle's proxy.
const GlobalObjectType = "Global"

// userInitiatedCode is the close code that unconditionally terminates the
// session, per spec: a close with this code always means CLOSED, never
// SUSPENDED, regardless of SuspendOnClose.
const userInitiatedCode = 1000

// suspendCloseCode is the code used when Suspend() itself closes the
// socket.
const suspendCloseCode = 4000

// ClosedEvent is delivered on the Closed topic.
type ClosedEvent struct {
	Code   int
	Reason string
}

// ResumedEvent is delivered on the Resumed topic; ClosedHandles lists
// handles that could not be reattached during resume and were dropped.
type ResumedEvent struct {
	ClosedHandles []jsonrpc.Handle
}

type pendingAction int

const (
	actionNone pendingAction = iota
	actionClose
	actionSuspend
)

// Session is the RPC-over-WebSocket client core.
type Session struct {
	opts     Options
	log      *slog.Logger
	rpc      *rpc.Client
	cache    *apicache.Cache
	factory  *proxy.Factory
	suspend  *suspend.Controller
	reattach suspend.Reattacher

	mu            sync.Mutex
	state         State
	pending       pendingAction
	openFuture    *future.Future[struct{}]
	closeFuture   *future.Future[struct{}]
	suspendFuture *future.Future[struct{}]

	openedTopic    *pubsub.Topic[struct{}]
	closedTopic    *pubsub.Topic[ClosedEvent]
	suspendedTopic *pubsub.Topic[struct{}]
	resumedTopic   *pubsub.Topic[ResumedEvent]
	socketErrTopic *pubsub.Topic[error]
	notifications  *pubsub.Registry[string, jsonrpc.RawMessage]
	wildcardNotes  *pubsub.Topic[NotificationEvent]
}

// NotificationEvent is delivered on the wildcard notification channel.
type NotificationEvent struct {
	Method string
	Params jsonrpc.RawMessage
}

// New constructs a Session. The socket is not dialed until Open is called.
func New(opts Options) *Session {
	log := opts.logger()

	s := &Session{
		opts:           opts,
		log:            log,
		cache:          apicache.New(),
		factory:        proxy.NewFactory(opts.SchemaLookup),
		openedTopic:    pubsub.New[struct{}](),
		closedTopic:    pubsub.New[ClosedEvent](),
		suspendedTopic: pubsub.New[struct{}](),
		resumedTopic:   pubsub.New[ResumedEvent](),
		socketErrTopic: pubsub.New[error](),
		notifications:  pubsub.NewRegistry[string, jsonrpc.RawMessage](),
		wildcardNotes:  pubsub.New[NotificationEvent](),
		state:          Created,
	}

	s.rpc = rpc.New(opts.socketFactory(), opts.URL, log)
	s.rpc.SetResponseHook(s.handleResponseSideband)
	s.rpc.OnNotification(s.handleNotification)
	s.rpc.OnSocketError(s.handleSocketError)
	s.rpc.OnClosed(s.handleClosed)

	s.reattach = &globalReattacher{session: s}
	s.suspend = suspend.New(s.cache, s.rpc, s.reattach, log)

	return s
}

// OpenAsync starts opening the session and returns a future that every
// concurrent or subsequent call while opening or already open will share.
func (s *Session) OpenAsync(ctx context.Context) *future.Future[struct{}] {
	s.mu.Lock()
	if s.openFuture != nil && (s.state == Opening || s.state == Opened) {
		fut := s.openFuture
		s.mu.Unlock()
		return fut
	}
	fut := future.New[struct{}](0)
	s.openFuture = fut
	s.state = Opening
	s.mu.Unlock()

	go s.doOpen(ctx, fut)
	return fut
}

func (s *Session) doOpen(ctx context.Context, fut *future.Future[struct{}]) {
	if err := s.rpc.Open(ctx); err != nil {
		s.mu.Lock()
		s.state = Created
		s.mu.Unlock()
		fut.Reject(fmt.Errorf("session: open: %w", err))
		return
	}

	generated, err := s.factory.Generate(GlobalObjectType)
	if err != nil {
		s.mu.Lock()
		s.state = Created
		s.mu.Unlock()
		fut.Reject(fmt.Errorf("session: generate global proxy: %w", err))
		return
	}
	globalProxy := generated.Create(s, jsonrpc.GlobalHandle, "global", s.opts.protocolDelta(), "")
	s.cache.Add(jsonrpc.GlobalHandle, &apicache.Entry{
		Type: GlobalObjectType,
		ID:   "global",
		API:  globalProxy,
	})

	s.mu.Lock()
	s.state = Opened
	s.mu.Unlock()

	s.openedTopic.Publish(struct{}{})
	fut.Resolve(struct{}{})
}

// Open opens the session and blocks until it is opened or ctx ends.
func (s *Session) Open(ctx context.Context) error {
	_, err := s.OpenAsync(ctx).Get(ctx)
	return err
}

// GlobalProxy returns the always-present root proxy.
func (s *Session) GlobalProxy() *proxy.Proxy {
	api := s.cache.GetAPI(jsonrpc.GlobalHandle)
	if api == nil {
		return nil
	}
	return api.(*proxy.Proxy)
}

// Cache exposes the API cache for inspection (GetApi/GetApis/handle
// subscriptions).
func (s *Session) Cache() *apicache.Cache { return s.cache }

// ProxyFactory exposes the proxy factory so callers can create bound
// proxies for handles they obtain from the global proxy's results.
func (s *Session) ProxyFactory() *proxy.Factory { return s.factory }

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SendFuture runs the mandatory request-side steps (suspended/closed
// check, protocol-option merge, interceptor chain) and hands the request
// to the RPC layer, returning a future exposing the assigned request id
// before the response arrives.
func (s *Session) SendFuture(ctx context.Context, req *jsonrpc.Request) (*future.Future[*jsonrpc.Response], error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case Suspending, Suspended:
		return nil, &StateError{Reason: "Session suspended"}
	case Closing, Closed:
		return nil, &StateError{Reason: "Session closed"}
	case Created:
		return nil, &StateError{Reason: "Session not open"}
	}

	// Merge protocol options: an explicit Delta on the request -- even
	// false -- always wins over the protocol default (delta blacklist).
	if req.Delta == nil {
		d := s.opts.protocolDelta()
		req.Delta = &d
	}

	cur := req
	for _, interceptor := range s.opts.RequestInterceptors {
		next, err := interceptor(ctx, s, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	fut, err := s.rpc.Send(ctx, cur)
	if err != nil {
		return nil, err
	}
	return fut, nil
}

// Send sends req and returns the fully processed result: the default
// response chain (delta application, then error-to-exception mapping)
// runs, followed by any caller-supplied response interceptors, before the
// raw result is extracted.
func (s *Session) Send(ctx context.Context, req *jsonrpc.Request) (jsonrpc.RawMessage, error) {
	fut, err := s.SendFuture(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := fut.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.runResponseChain(ctx, req, resp)
}

func (s *Session) runResponseChain(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) (jsonrpc.RawMessage, error) {
	cur := resp
	chain := s.defaultResponseChain()
	chain = append(chain, s.opts.ResponseInterceptors...)
	for _, interceptor := range chain {
		next, err := interceptor(ctx, s, req, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur.Result, nil
}

// handleResponseSideband is registered with the RPC layer to run
// synchronously on every response, before the RPC layer resolves the
// caller's future -- so handle:changed/handle:closed observers always see
// the side-band event before any continuation of the triggering Send call.
func (s *Session) handleResponseSideband(resp *jsonrpc.Response) {
	for _, h := range resp.Change {
		s.cache.EmitChanged(h)
	}
	// Close is applied after change for the same handle: it is terminal.
	for _, h := range resp.Close {
		s.cache.EmitClosed(h)
	}
}

func (s *Session) handleNotification(note *jsonrpc.Notification) {
	s.notifications.Publish(note.Method, note.Params)
	s.wildcardNotes.Publish(NotificationEvent{Method: note.Method, Params: note.Params})
}

func (s *Session) handleSocketError(err error) {
	s.mu.Lock()
	suspended := s.state == Suspended || s.state == Suspending
	s.mu.Unlock()
	if suspended {
		return
	}
	s.socketErrTopic.Publish(err)
}

func (s *Session) handleClosed(evt rpc.CloseEvent) {
	s.mu.Lock()
	pending := s.pending
	s.pending = actionNone
	s.mu.Unlock()

	switch {
	case pending == actionClose || evt.Code == userInitiatedCode:
		s.finalizeClosed(evt)
	case pending == actionSuspend:
		s.finalizeSuspended()
	case s.opts.SuspendOnClose:
		s.finalizeSuspended()
	default:
		s.finalizeClosed(evt)
	}
}

func (s *Session) finalizeClosed(evt rpc.CloseEvent) {
	s.cache.Clear()

	s.mu.Lock()
	s.state = Closed
	cf := s.closeFuture
	s.closeFuture = nil
	s.mu.Unlock()

	s.closedTopic.Publish(ClosedEvent{Code: evt.Code, Reason: evt.Reason})
	if cf != nil {
		cf.Resolve(struct{}{})
	}
}

func (s *Session) finalizeSuspended() {
	s.suspend.ForceSuspended()

	s.mu.Lock()
	s.state = Suspended
	sf := s.suspendFuture
	s.suspendFuture = nil
	s.mu.Unlock()

	s.suspendedTopic.Publish(struct{}{})
	if sf != nil {
		sf.Resolve(struct{}{})
	}
}

// Close terminates the session unconditionally: the socket closes with the
// user-initiated code, the cache is cleared (emitting handle:closed for
// every live handle), and outstanding requests are rejected.
func (s *Session) Close(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil
	}
	fut := future.New[struct{}](0)
	s.closeFuture = fut
	s.pending = actionClose
	s.state = Closing
	s.mu.Unlock()

	if err := s.rpc.Close(userInitiatedCode, reason); err != nil {
		s.log.Warn("session: close returned an error from the transport", "err", err)
	}

	_, err := fut.Get(ctx)
	return err
}

// Suspend drops the transport while retaining the API cache. It always
// succeeds once the socket has closed.
func (s *Session) Suspend(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.state == Suspended {
		s.mu.Unlock()
		return nil
	}
	fut := future.New[struct{}](0)
	s.suspendFuture = fut
	s.pending = actionSuspend
	s.state = Suspending
	s.mu.Unlock()

	if err := s.rpc.Close(suspendCloseCode, reason); err != nil {
		s.log.Warn("session: suspend returned an error from the transport", "err", err)
	}

	_, err := fut.Get(ctx)
	return err
}

// Resume re-establishes the socket and reconciles every cached handle.
func (s *Session) Resume(ctx context.Context, onlyIfAttached bool) (*suspend.ResumeResult, error) {
	s.mu.Lock()
	if s.state != Suspended {
		s.mu.Unlock()
		return nil, &StateError{Reason: "Session is not suspended"}
	}
	s.state = Resuming
	s.mu.Unlock()

	result, err := s.suspend.Resume(ctx, onlyIfAttached)
	if err != nil {
		s.mu.Lock()
		s.state = Suspended
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.state = Opened
	s.mu.Unlock()

	s.resumedTopic.Publish(ResumedEvent{ClosedHandles: result.ClosedHandles})
	return result, nil
}

// OnOpened subscribes to the session becoming OPENED.
func (s *Session) OnOpened(fn func()) (unsubscribe func()) {
	return s.openedTopic.Subscribe(func(struct{}) { fn() })
}

// OnClosed subscribes to the terminal CLOSED transition.
func (s *Session) OnClosed(fn func(ClosedEvent)) (unsubscribe func()) {
	return s.closedTopic.Subscribe(fn)
}

// OnSuspended subscribes to the SUSPENDED transition.
func (s *Session) OnSuspended(fn func()) (unsubscribe func()) {
	return s.suspendedTopic.Subscribe(func(struct{}) { fn() })
}

// OnResumed subscribes to a successful resume.
func (s *Session) OnResumed(fn func(ResumedEvent)) (unsubscribe func()) {
	return s.resumedTopic.Subscribe(fn)
}

// OnSocketError subscribes to socket-level errors, suppressed while
// suspended.
func (s *Session) OnSocketError(fn func(error)) (unsubscribe func()) {
	return s.socketErrTopic.Subscribe(fn)
}

// OnNotification subscribes to notifications for a specific method.
func (s *Session) OnNotification(method string, fn func(jsonrpc.RawMessage)) (unsubscribe func()) {
	return s.notifications.Topic(method).Subscribe(fn)
}

// OnAnyNotification subscribes to every notification, regardless of
// method.
func (s *Session) OnAnyNotification(fn func(NotificationEvent)) (unsubscribe func()) {
	return s.wildcardNotes.Subscribe(fn)
}

// OnHandleChanged subscribes to change events for handle.
func (s *Session) OnHandleChanged(handle jsonrpc.Handle, fn func(jsonrpc.Handle)) (unsubscribe func()) {
	return s.cache.OnChanged(handle, fn)
}

// OnHandleClosed subscribes to close events for handle.
func (s *Session) OnHandleClosed(handle jsonrpc.Handle, fn func(jsonrpc.Handle)) (unsubscribe func()) {
	return s.cache.OnClosed(handle, fn)
}
