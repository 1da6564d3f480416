// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/engineclient/rpcsession/internal/jsonrpc"
	"github.com/engineclient/rpcsession/suspend"
)

// objectGoneCode is the RPC error code this package reads as "no object
// with this id exists any more" when GetObject fails during resume.
const objectGoneCode = -32001

// getObjectResult is the shape of a successful GetObject response.
type getObjectResult struct {
	Handle jsonrpc.Handle `json:"handle"`
}

// globalReattacher implements suspend.Reattacher against the session's own
// global handle proxy, via a GetObject call.
type globalReattacher struct {
	session *Session
}

func (r *globalReattacher) Reattach(ctx context.Context, objectID string) (jsonrpc.Handle, error) {
	global := r.session.GlobalProxy()
	if global == nil {
		return 0, fmt.Errorf("session: reattach: global proxy not available")
	}

	raw, err := global.Call(ctx, "GetObject", map[string]string{"id": objectID})
	if err != nil {
		var rpcErr *RpcError
		if errors.As(err, &rpcErr) && rpcErr.Code == objectGoneCode {
			return 0, fmt.Errorf("%w: %s", suspend.ErrObjectGone, rpcErr.Message)
		}
		return 0, err
	}

	var result getObjectResult
	if err := decodeResult(raw, &result); err != nil {
		return 0, fmt.Errorf("session: reattach: decode GetObject result: %w", err)
	}
	return result.Handle, nil
}
