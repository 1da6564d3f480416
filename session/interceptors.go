// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"fmt"

	"github.com/engineclient/rpcsession/internal/jsonrpc"
	"github.com/engineclient/rpcsession/internal/xjson"
)

// defaultResponseChain is: delta application -> error-to-exception mapping.
// Result extraction is performed by Send itself once the chain completes,
// since it is a pure read of resp.Result rather than a transformation
// that could fail.
func (s *Session) defaultResponseChain() []ResponseInterceptor {
	return []ResponseInterceptor{
		deltaInterceptor,
		errorMappingInterceptor,
	}
}

// deltaInterceptor applies an incoming delta against the cached base for
// (handle, method), and otherwise records a full result as the new base
// for the next delta.
func deltaInterceptor(_ context.Context, s *Session, req *jsonrpc.Request, resp *jsonrpc.Response) (*jsonrpc.Response, error) {
	switch {
	case len(resp.Delta) > 0:
		base, _ := s.cache.GetPatchee(req.Handle, req.Method)
		merged, err := xjson.ApplyMergePatch(base, resp.Delta)
		if err != nil {
			return nil, fmt.Errorf("session: apply delta for %s: %w", req.Method, err)
		}
		s.cache.SetPatchee(req.Handle, req.Method, merged)
		out := *resp
		out.Result = merged
		out.Delta = nil
		return &out, nil
	case len(resp.Result) > 0:
		s.cache.SetPatchee(req.Handle, req.Method, resp.Result)
	}
	return resp, nil
}

// errorMappingInterceptor converts a JSON-RPC error body into a Go error,
// short-circuiting the chain.
func errorMappingInterceptor(_ context.Context, _ *Session, _ *jsonrpc.Request, resp *jsonrpc.Response) (*jsonrpc.Response, error) {
	if resp.Error != nil {
		return nil, &RpcError{
			Code:      resp.Error.Code,
			Message:   resp.Error.Message,
			Parameter: resp.Error.Parameter,
		}
	}
	return resp, nil
}
