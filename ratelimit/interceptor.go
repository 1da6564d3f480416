// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package ratelimit provides an optional request interceptor that throttles
// outbound sends against a token-bucket limiter, for callers who want
// client-side pacing independent of the transport-level back-off policy
// the core deliberately leaves out of scope.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/engineclient/rpcsession/internal/jsonrpc"
	"github.com/engineclient/rpcsession/session"
	"golang.org/x/time/rate"
)

// Interceptor returns a session.RequestInterceptor that blocks until limiter
// admits the next request, or ctx ends.
func Interceptor(limiter *rate.Limiter) session.RequestInterceptor {
	return func(ctx context.Context, _ *session.Session, req *jsonrpc.Request) (*jsonrpc.Request, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("ratelimit: %w", err)
		}
		return req, nil
	}
}
