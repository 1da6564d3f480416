// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketFactory builds Sockets backed by gorilla/websocket. It is the
// default Factory used when Options.CreateSocket is nil.
type WebSocketFactory struct {
	// Dialer is the WebSocket dialer to use. If nil, websocket.DefaultDialer
	// is used.
	Dialer *websocket.Dialer

	// Header carries additional HTTP headers sent during the handshake.
	Header http.Header
}

// New returns a Factory bound to this WebSocketFactory's configuration.
func (f *WebSocketFactory) New() Factory {
	return func(ctx context.Context, url string) (Socket, error) {
		return &webSocketSocket{factory: f, url: url}, nil
	}
}

// webSocketSocket implements Socket over a *websocket.Conn. The
// connection is dialed lazily in Open, mirroring the teacher's
// websocketConn: dial happens once, at Open time, not at construction.
type webSocketSocket struct {
	factory *WebSocketFactory
	url     string

	mu   sync.Mutex // protects conn and Send
	conn *websocket.Conn

	onMessage func(string)
	onOpen    func()
	onClose   func(code int, reason string)
	onError   func(error)

	closeOnce sync.Once
}

func (s *webSocketSocket) Open(ctx context.Context) error {
	dialer := s.factory.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, s.url, s.factory.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connect failed: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("websocket connect failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if s.onOpen != nil {
		s.onOpen()
	}

	go s.readLoop()
	return nil
}

func (s *webSocketSocket) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			// A local Close already reported its own code/reason; don't let
			// the resulting read error (a generic "use of closed network
			// connection", not a *websocket.CloseError) overwrite it.
			s.closeOnce.Do(func() {
				code, reason := closeCodeOf(err)
				if s.onClose != nil {
					s.onClose(code, reason)
				}
			})
			return
		}
		if messageType != websocket.TextMessage {
			if s.onError != nil {
				s.onError(fmt.Errorf("unexpected websocket message type: %d", messageType))
			}
			continue
		}
		if s.onMessage != nil {
			s.onMessage(string(data))
		}
	}
}

func closeCodeOf(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	if err == io.EOF {
		return websocket.CloseAbnormalClosure, "connection closed"
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

func (s *webSocketSocket) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("websocket send: not open")
	}
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("websocket write error: %w", err)
	}
	return nil
}

func (s *webSocketSocket) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(code, reason)
			conn.WriteControl(websocket.CloseMessage, msg, deadline)
			err = conn.Close()
		}
		// Report the code/reason the caller actually asked for. The
		// subsequent read error from readLoop's conn.ReadMessage is a local
		// "closed network connection" error, not a *websocket.CloseError,
		// and closeCodeOf cannot recover the original intent from it.
		if s.onClose != nil {
			s.onClose(code, reason)
		}
	})
	return err
}

func (s *webSocketSocket) OnMessage(fn func(string))                { s.onMessage = fn }
func (s *webSocketSocket) OnOpen(fn func())                         { s.onOpen = fn }
func (s *webSocketSocket) OnClose(fn func(code int, reason string)) { s.onClose = fn }
func (s *webSocketSocket) OnError(fn func(error))                   { s.onError = fn }
