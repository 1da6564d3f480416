// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc frames the JSON-RPC 2.0 request/response/notification
// messages exchanged with the analytics engine, and strips any field the
// wire protocol does not recognize before a request is ever encoded.
package jsonrpc

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// Version is the jsonrpc field carried on every outgoing request.
const Version = "2.0"

// RawMessage re-exports the fast JSON codec's raw-message type so callers
// elsewhere in the module don't need their own import of
// segmentio/encoding/json just to hold an undecoded payload.
type RawMessage = json.RawMessage

// Handle names a server-side object. -1 is the global handle, always
// present for the lifetime of a session.
type Handle int64

// GlobalHandle is the always-present root handle from which all other
// objects are obtained.
const GlobalHandle Handle = -1

// Request is a JSON-RPC request sent to the engine. Only the fields below
// are ever put on the wire; a request assembled from a caller's map is
// first reduced to the same keys by StripUnknown.
type Request struct {
	Method      string          `json:"method"`
	Handle      Handle          `json:"handle"`
	Params      json.RawMessage `json:"params,omitempty"`
	Delta       *bool           `json:"delta,omitempty"`
	Cont        *bool           `json:"cont,omitempty"`
	ReturnEmpty *bool           `json:"return_empty,omitempty"`
	ID          int64           `json:"id,omitempty"`
	JSONRPC     string          `json:"jsonrpc"`
}

// Response correlates to exactly one outstanding request by ID. Change and
// Close carry side-band notifications piggybacked on the response.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
	Change []Handle        `json:"change,omitempty"`
	Close  []Handle        `json:"close,omitempty"`
	Delta  json.RawMessage `json:"delta,omitempty"`
}

// ErrorBody is the JSON-RPC error object carried verbatim in a Response.
type ErrorBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Parameter string `json:"parameter,omitempty"`
}

// Notification has no ID; it is fanned out on a typed and a wildcard
// channel by the session.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// frame is the union shape used to sniff an incoming message: a response
// carries an id with no method, a notification carries a method with no id.
type frame struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
	Change []Handle        `json:"change,omitempty"`
	Close  []Handle        `json:"close,omitempty"`
	Delta  json.RawMessage `json:"delta,omitempty"`
}

// Decode parses a raw socket message into either a *Response or a
// *Notification. An id-bearing frame with no method is a response; a
// frame with no id is a notification, per the engine's wire protocol.
func Decode(data []byte) (resp *Response, note *Notification, err error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("jsonrpc: decode frame: %w", err)
	}
	if f.ID == nil {
		return nil, &Notification{Method: f.Method, Params: f.Params}, nil
	}
	return &Response{
		ID:     *f.ID,
		Result: f.Result,
		Error:  f.Error,
		Change: f.Change,
		Close:  f.Close,
		Delta:  f.Delta,
	}, nil, nil
}

// Encode marshals a request into the wire form, carrying only the
// enumerated keys.
func Encode(req *Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode request: %w", err)
	}
	return data, nil
}

// allowedKeys is the set of fields ever forwarded on an outgoing request.
// StripUnknown drops map keys outside this set before a request is built,
// mirroring the engine's wire contract in full.
var allowedKeys = map[string]bool{
	"method":       true,
	"handle":       true,
	"params":       true,
	"delta":        true,
	"cont":         true,
	"return_empty": true,
	"id":           true,
	"jsonrpc":      true,
}

// StripUnknown filters a caller-supplied map down to the allow-listed
// request keys, returning the subset that is legal to forward. Callers
// build requests from typed fields; this exists for interceptors or
// generic callers that assemble a map[string]any before handing it to the
// session.
func StripUnknown(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if allowedKeys[k] {
			out[k] = v
		}
	}
	return out
}

// RequestFromMap builds a Request from a map of wire field values, typically
// one already passed through StripUnknown. Used by the proxy package's
// dynamic call path, where a caller supplies ad hoc request options for a
// method outside the generated, schema-known method set.
func RequestFromMap(raw map[string]any) (*Request, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal request map: %w", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode request map: %w", err)
	}
	return &req, nil
}
