// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import "fmt"

// StateError is returned when Send is called while the session is
// suspended or closed.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return fmt.Sprintf("session: %s", e.Reason) }

// RpcError carries a JSON-RPC error body verbatim, mapped from the
// response-interceptor chain's error stage.
type RpcError struct {
	Code      int
	Message   string
	Parameter string
}

func (e *RpcError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("session: rpc error %d (%s): %s", e.Code, e.Parameter, e.Message)
	}
	return fmt.Sprintf("session: rpc error %d: %s", e.Code, e.Message)
}
