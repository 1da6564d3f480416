// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package proxy

import "github.com/segmentio/encoding/json"

// marshalParams encodes a stub's params argument to the request's raw
// params field. nil params are handled by the caller before this is
// reached.
func marshalParams(params any) ([]byte, error) {
	return json.Marshal(params)
}
