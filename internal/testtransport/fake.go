// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package testtransport provides an in-memory transport.Socket for tests in
// other packages, so rpc, suspend, and session can be exercised end to end
// without a live network connection.
package testtransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/engineclient/rpcsession/transport"
)

// FakeSocket is a transport.Socket whose peer is driven directly by test
// code via Deliver and PeerClose, instead of a real network connection.
type FakeSocket struct {
	mu        sync.Mutex
	openCount int
	closed    bool
	sent      []string

	onMessage func(string)
	onOpen    func()
	onClose   func(code int, reason string)
	onError   func(error)

	// OpenErr, if set, is returned by the next Open call instead of
	// succeeding.
	OpenErr error

	// OnSend, if set, is called synchronously for every Send, letting a
	// test script a reply or an error.
	OnSend func(text string) error
}

var _ transport.Socket = (*FakeSocket)(nil)

// NewFactory returns a transport.Factory that always hands back socket,
// ignoring the url and re-using the same instance across Open calls -- the
// way a test driving suspend/resume against one fake peer needs.
func NewFactory(socket *FakeSocket) transport.Factory {
	return func(ctx context.Context, url string) (transport.Socket, error) {
		return socket, nil
	}
}

func (s *FakeSocket) Open(ctx context.Context) error {
	if s.OpenErr != nil {
		err := s.OpenErr
		s.OpenErr = nil
		return err
	}
	s.mu.Lock()
	s.openCount++
	s.closed = false
	s.mu.Unlock()
	if s.onOpen != nil {
		s.onOpen()
	}
	return nil
}

func (s *FakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.onClose != nil {
		s.onClose(code, reason)
	}
	return nil
}

func (s *FakeSocket) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	s.sent = append(s.sent, text)
	hook := s.OnSend
	s.mu.Unlock()
	if hook != nil {
		return hook(text)
	}
	return nil
}

func (s *FakeSocket) OnMessage(fn func(string))                { s.onMessage = fn }
func (s *FakeSocket) OnOpen(fn func())                         { s.onOpen = fn }
func (s *FakeSocket) OnClose(fn func(code int, reason string)) { s.onClose = fn }
func (s *FakeSocket) OnError(fn func(error))                   { s.onError = fn }

// Deliver simulates the peer sending text on this socket.
func (s *FakeSocket) Deliver(text string) {
	s.mu.Lock()
	fn := s.onMessage
	s.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

// PeerClose simulates the peer (or an unsolicited transport failure) ending
// the connection.
func (s *FakeSocket) PeerClose(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fn := s.onClose
	s.mu.Unlock()
	if fn != nil {
		fn(code, reason)
	}
}

// Sent returns every message handed to Send so far, in order.
func (s *FakeSocket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

// OpenCount reports how many times Open has succeeded.
func (s *FakeSocket) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCount
}

// RequireOpen fails fast with a descriptive error if the socket was never
// opened, a common setup mistake when wiring a fake into a Client.
func (s *FakeSocket) RequireOpen() error {
	if s.OpenCount() == 0 {
		return fmt.Errorf("testtransport: fake socket was never opened")
	}
	return nil
}
